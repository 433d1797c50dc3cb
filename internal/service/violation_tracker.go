package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// ViolationTracker counts proctoring violations against the exam's threshold.
// Every report counts; duplicates are the client's to debounce.
type ViolationTracker struct {
	defaultMax int
}

// NewViolationTracker creates a ViolationTracker. defaultMax applies to exams
// without their own threshold.
func NewViolationTracker(defaultMax int) *ViolationTracker {
	return &ViolationTracker{defaultMax: defaultMax}
}

// Limit returns the violation threshold of exam.
func (t *ViolationTracker) Limit(exam *model.Exam) int {
	return exam.ViolationLimit(t.defaultMax)
}

// Record appends a violation to the locked attempt and evaluates the threshold.
// The result carries the type as stored.
func (t *ViolationTracker) Record(
	ctx context.Context,
	tx repository.AttemptTx,
	exam *model.Exam,
	violationType, description string,
	at time.Time,
) (*model.ViolationResult, error) {
	violationType = model.NormalizeViolationType(violationType)
	description = strings.TrimSpace(description)
	if description == "" {
		description = model.DefaultViolationDescription(violationType)
	}

	count, err := tx.AddViolation(ctx, &model.Violation{
		Type:        violationType,
		Description: description,
		OccurredAt:  at,
	})
	if err != nil {
		return nil, fmt.Errorf("add violation: %w", err)
	}

	limit := t.Limit(exam)
	return &model.ViolationResult{
		Type:             violationType,
		ViolationCount:   count,
		MaxViolations:    limit,
		ShouldAutoSubmit: count >= limit,
	}, nil
}
