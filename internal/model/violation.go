package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Violation types reported by the exam client. Other tags are accepted as-is.
const (
	ViolationFullscreenExit = "FULLSCREEN_EXIT"
	ViolationTabSwitch      = "TAB_SWITCH"
	ViolationWindowBlur     = "WINDOW_BLUR"
	ViolationCopyPaste      = "COPY_PASTE"
)

// Violation is an append-only proctoring log entry.
type Violation struct {
	ID          int64     `json:"id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NormalizeViolationType maps a client tag to its stored form, so
// "fullscreen-exit" and "FULLSCREEN_EXIT" are the same violation.
func NormalizeViolationType(violationType string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(violationType), "-", "_"))
}

// DefaultViolationDescription is stored when the client sends no description.
func DefaultViolationDescription(violationType string) string {
	return fmt.Sprintf("Student violated exam rules: %s", violationType)
}

// ReportViolationRequest is the payload for a proctoring violation report.
type ReportViolationRequest struct {
	Type        string `json:"type" binding:"required,min=2,max=50,violation_type"`
	Description string `json:"description" binding:"omitempty,max=500"`
}

// ViolationResult is returned after a violation has been recorded.
type ViolationResult struct {
	Type             string `json:"type"`
	ViolationCount   int    `json:"violation_count"`
	MaxViolations    int    `json:"max_violations"`
	ShouldAutoSubmit bool   `json:"should_auto_submit"`
}
