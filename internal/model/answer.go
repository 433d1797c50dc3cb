package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a student's response to one question within an attempt.
type Answer struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *Option   `json:"selected_option"`
	IsFlagged      bool      `json:"is_flagged"`
	IsCorrect      *bool     `json:"is_correct,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SavedAnswer is an answer as returned to the student while taking the exam.
type SavedAnswer struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption *Option   `json:"selected_option"`
	IsFlagged      bool      `json:"is_flagged"`
}

// SaveProgressRequest is the autosave payload. A question present in answers
// with a null value clears its selection.
type SaveProgressRequest struct {
	Answers        map[uuid.UUID]*Option `json:"answers"`
	Flags          map[uuid.UUID]bool    `json:"flags"`
	ElapsedSeconds int                   `json:"elapsed_seconds" binding:"min=0"`
}

// SubmitRequest is the final submission payload.
type SubmitRequest struct {
	Answers        map[uuid.UUID]*Option `json:"answers"`
	Flags          map[uuid.UUID]bool    `json:"flags"`
	ElapsedSeconds int                   `json:"elapsed_seconds" binding:"min=0"`
	Trigger        SubmitTrigger         `json:"trigger" binding:"omitempty,oneof=MANUAL TIMER_EXPIRY VIOLATION_THRESHOLD"`
}
