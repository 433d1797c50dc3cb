package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptEventRepository appends to the attempt_events audit table.
type AttemptEventRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptEventRepository creates a new AttemptEventRepository.
func NewAttemptEventRepository(pool *pgxpool.Pool) *AttemptEventRepository {
	return &AttemptEventRepository{pool: pool}
}

var attemptEventColumns = []string{"attempt_id", "exam_id", "student_id", "type", "payload", "occurred_at"}

// InsertBatch bulk-loads events with COPY.
func (r *AttemptEventRepository) InsertBatch(ctx context.Context, events []model.AttemptEvent) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		rows = append(rows, []any{e.AttemptID, e.ExamID, e.StudentID, string(e.Type), string(payload), e.OccurredAt})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"attempt_events"},
		attemptEventColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single event.
func (r *AttemptEventRepository) Insert(ctx context.Context, e model.AttemptEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_events (attempt_id, exam_id, student_id, type, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		e.AttemptID, e.ExamID, e.StudentID, string(e.Type), string(payload), e.OccurredAt)
	return err
}
