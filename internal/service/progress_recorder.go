package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// ProgressRecorder writes answer selections, review flags and elapsed time of
// an in-progress attempt. Writes are per-question upserts, so replaying the
// same payload is harmless.
type ProgressRecorder struct {
	skew time.Duration
}

// NewProgressRecorder creates a ProgressRecorder that tolerates client clocks
// running up to skew ahead of the server.
func NewProgressRecorder(skew time.Duration) *ProgressRecorder {
	return &ProgressRecorder{skew: skew}
}

// Record applies answers, flags and elapsed to the locked attempt.
func (r *ProgressRecorder) Record(
	ctx context.Context,
	tx repository.AttemptTx,
	questions []model.Question,
	answers map[uuid.UUID]*model.Option,
	flags map[uuid.UUID]bool,
	elapsed int,
	now time.Time,
) error {
	changes, err := BuildAnswerChanges(questions, answers, flags)
	if err != nil {
		return err
	}
	if err := tx.UpsertAnswers(ctx, changes); err != nil {
		return fmt.Errorf("upsert answers: %w", err)
	}

	a := tx.Attempt()
	target := ReconcileElapsed(a.ElapsedSeconds, elapsed, a.StartedAt, now, r.skew)
	if target > a.ElapsedSeconds {
		if err := tx.RaiseElapsed(ctx, target); err != nil {
			return fmt.Errorf("raise elapsed: %w", err)
		}
	}
	return nil
}

// BuildAnswerChanges turns a client payload into per-question changes in exam
// order. Ids that are not questions of the exam are dropped.
func BuildAnswerChanges(questions []model.Question, answers map[uuid.UUID]*model.Option, flags map[uuid.UUID]bool) ([]repository.AnswerChange, error) {
	var changes []repository.AnswerChange
	for _, q := range questions {
		opt, hasAnswer := answers[q.ID]
		flagged, hasFlag := flags[q.ID]
		if !hasAnswer && !hasFlag {
			continue
		}
		if opt != nil && !opt.Valid() {
			return nil, fmt.Errorf("question %s: %w", q.ID, ErrInvalidOption)
		}
		changes = append(changes, repository.AnswerChange{
			QuestionID: q.ID,
			SetOption:  hasAnswer,
			Option:     opt,
			SetFlag:    hasFlag,
			Flagged:    flagged,
		})
	}
	return changes, nil
}
