package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ExamReader is the read-only exam catalog.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// EnrollmentReader answers class membership questions.
type EnrollmentReader interface {
	IsEnrolled(ctx context.Context, classID, studentID int) (bool, error)
}

// AttemptStore persists attempts, their answers and their violation log.
// Every mutation of an existing attempt goes through WithLock.
type AttemptStore interface {
	// Create inserts a new attempt. It reports false when an attempt for the
	// same (student, exam) pair already exists.
	Create(ctx context.Context, a *model.Attempt) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetByStudentAndExam(ctx context.Context, studentID int, examID uuid.UUID) (*model.Attempt, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	// ListExpired returns in-progress attempts whose elapsed time reached the
	// exam duration or whose exam window closed before now, skipping exclude.
	ListExpired(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error)
	// WithLock runs fn with the attempt row locked. Changes made through tx
	// are committed only when fn returns nil.
	WithLock(ctx context.Context, id uuid.UUID, fn func(tx AttemptTx) error) error
}

// AttemptTx mutates one locked attempt.
type AttemptTx interface {
	// Attempt returns the locked row, updated by every write made through tx.
	Attempt() *model.Attempt
	SetSessionToken(ctx context.Context, token string) error
	// RaiseElapsed stores elapsed only when it exceeds the stored value.
	RaiseElapsed(ctx context.Context, elapsed int) error
	UpsertAnswers(ctx context.Context, changes []AnswerChange) error
	Answers(ctx context.Context) ([]model.Answer, error)
	// AddViolation appends v to the log and returns the new violation count.
	AddViolation(ctx context.Context, v *model.Violation) (int, error)
	Finalize(ctx context.Context, f Finalization) error
	MarkGraded(ctx context.Context, at time.Time) error
}

// AnswerChange is a partial update of one answer row. Fields whose Set flag
// is false keep their stored value.
type AnswerChange struct {
	QuestionID uuid.UUID
	SetOption  bool
	Option     *model.Option
	SetFlag    bool
	Flagged    bool
}

// Finalization freezes an attempt as SUBMITTED.
type Finalization struct {
	Score       int
	MaxScore    int
	Correct     map[uuid.UUID]bool
	SubmittedAt time.Time
	Trigger     model.SubmitTrigger
	SubmitIP    string
}

// MonitorRow is one attempt as seen by the live exam monitor.
type MonitorRow struct {
	AttemptID      uuid.UUID           `json:"attempt_id"`
	StudentID      int                 `json:"student_id"`
	Status         model.AttemptStatus `json:"status"`
	ElapsedSeconds int                 `json:"elapsed_seconds"`
	ViolationCount int                 `json:"violation_count"`
	AnsweredCount  int                 `json:"answered_count"`
	Score          *int                `json:"score,omitempty"`
	MaxScore       *int                `json:"max_score,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
}

// MonitorReader lists the attempts of one exam.
type MonitorReader interface {
	ListExamAttempts(ctx context.Context, examID uuid.UUID) ([]MonitorRow, error)
}
