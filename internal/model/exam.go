package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusActive    ExamStatus = "ACTIVE"
	ExamStatusClosed    ExamStatus = "CLOSED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// StudentVisible reports whether students may start or continue attempts on
// an exam in this status.
func (s ExamStatus) StudentVisible() bool {
	return s == ExamStatusPublished || s == ExamStatusActive
}

// Exam is the read-only view of an exam owned by the authoring subsystem.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	ClassID         int        `json:"class_id"`
	TeacherID       int        `json:"teacher_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	MaxViolations   int        `json:"max_violations"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DurationSeconds returns the exam duration in seconds.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// ViolationLimit returns the exam's violation threshold, or fallback when the
// exam does not set one.
func (e *Exam) ViolationLimit(fallback int) int {
	if e.MaxViolations > 0 {
		return e.MaxViolations
	}
	return fallback
}

// ExamInfo is the pre-start summary shown to an enrolled student.
type ExamInfo struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DurationMinutes int            `json:"duration_minutes"`
	MaxViolations   int            `json:"max_violations"`
	QuestionCount   int            `json:"question_count"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Status          ExamStatus     `json:"status"`
	AttemptID       *uuid.UUID     `json:"attempt_id,omitempty"`
	AttemptStatus   *AttemptStatus `json:"attempt_status,omitempty"`
}
