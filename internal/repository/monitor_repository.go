package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the live exam monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListExamAttempts returns every attempt of the exam together with the number
// of questions that currently have a selected option.
func (r *MonitorRepository) ListExamAttempts(ctx context.Context, examID uuid.UUID) ([]MonitorRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, a.status, a.elapsed_seconds, a.violation_count,
		        COUNT(ans.question_id) FILTER (WHERE ans.selected_option IS NOT NULL),
		        a.score, a.max_score, a.started_at, a.submitted_at
		 FROM attempts a
		 LEFT JOIN attempt_answers ans ON ans.attempt_id = a.id
		 WHERE a.exam_id = $1
		 GROUP BY a.id
		 ORDER BY a.started_at`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonitorRow
	for rows.Next() {
		var m MonitorRow
		if err := rows.Scan(&m.AttemptID, &m.StudentID, &m.Status, &m.ElapsedSeconds, &m.ViolationCount,
			&m.AnsweredCount, &m.Score, &m.MaxScore, &m.StartedAt, &m.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
