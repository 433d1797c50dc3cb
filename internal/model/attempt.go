package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. An attempt that was never started
// has no row at all.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusGraded     AttemptStatus = "GRADED"
)

// Terminal reports whether the attempt is frozen.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusGraded
}

// SubmitTrigger records what caused an attempt to be submitted.
type SubmitTrigger string

const (
	SubmitTriggerManual             SubmitTrigger = "MANUAL"
	SubmitTriggerTimerExpiry        SubmitTrigger = "TIMER_EXPIRY"
	SubmitTriggerViolationThreshold SubmitTrigger = "VIOLATION_THRESHOLD"
)

// Valid reports whether t is a known trigger.
func (t SubmitTrigger) Valid() bool {
	switch t {
	case SubmitTriggerManual, SubmitTriggerTimerExpiry, SubmitTriggerViolationThreshold:
		return true
	}
	return false
}

// Attempt is one student's single attempt at one exam.
type Attempt struct {
	ID             uuid.UUID      `json:"id"`
	StudentID      int            `json:"student_id"`
	ExamID         uuid.UUID      `json:"exam_id"`
	Status         AttemptStatus  `json:"status"`
	SessionToken   *string        `json:"-"`
	StartedAt      time.Time      `json:"started_at"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	ViolationCount int            `json:"violation_count"`
	Score          *int           `json:"score,omitempty"`
	MaxScore       *int           `json:"max_score,omitempty"`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty"`
	SubmitTrigger  *SubmitTrigger `json:"submit_trigger,omitempty"`
	SubmitIP       *string        `json:"-"`
	GradedAt       *time.Time     `json:"graded_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasToken reports whether token is the attempt's live session token.
func (a *Attempt) HasToken(token string) bool {
	return a.SessionToken != nil && *a.SessionToken != "" && *a.SessionToken == token
}

// AttemptSummary is a row of a student's attempt history.
type AttemptSummary struct {
	AttemptID     uuid.UUID      `json:"attempt_id"`
	ExamID        uuid.UUID      `json:"exam_id"`
	ExamTitle     string         `json:"exam_title"`
	Status        AttemptStatus  `json:"status"`
	Score         *int           `json:"score,omitempty"`
	MaxScore      *int           `json:"max_score,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	SubmittedAt   *time.Time     `json:"submitted_at,omitempty"`
	SubmitTrigger *SubmitTrigger `json:"submit_trigger,omitempty"`
}

// ClientMeta describes the client that called an attempt operation.
type ClientMeta struct {
	IP        string
	UserAgent string
}
