package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptEventType names a lifecycle event of an attempt.
type AttemptEventType string

const (
	AttemptEventStarted         AttemptEventType = "STARTED"
	AttemptEventSessionReplaced AttemptEventType = "SESSION_REPLACED"
	AttemptEventViolation       AttemptEventType = "VIOLATION"
	AttemptEventSubmitted       AttemptEventType = "SUBMITTED"
	AttemptEventGraded          AttemptEventType = "GRADED"
)

// AttemptEvent is published on every lifecycle transition. It feeds the live
// monitor, the audit table and downstream consumers.
type AttemptEvent struct {
	Type           AttemptEventType `json:"type"`
	AttemptID      uuid.UUID        `json:"attempt_id"`
	ExamID         uuid.UUID        `json:"exam_id"`
	StudentID      int              `json:"student_id"`
	ViolationType  string           `json:"violation_type,omitempty"`
	ViolationCount int              `json:"violation_count,omitempty"`
	Trigger        SubmitTrigger    `json:"trigger,omitempty"`
	Score          *int             `json:"score,omitempty"`
	MaxScore       *int             `json:"max_score,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
