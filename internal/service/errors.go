package service

import "errors"

// Admission errors.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrNotEnrolled      = errors.New("student is not enrolled in the exam's class")
	ErrExamNotActive    = errors.New("exam is not open to students")
	ErrExamNotStarted   = errors.New("exam has not started yet")
	ErrExamEnded        = errors.New("exam has ended")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
)

// Attempt state errors.
var (
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrNoActiveAttempt    = errors.New("attempt is not in progress")
	ErrInvalidState       = errors.New("operation not allowed in the attempt's current state")
	ErrSessionReplaced    = errors.New("session was replaced by a newer login")
	ErrAttemptExpired     = errors.New("attempt time has run out")
	ErrResultNotAvailable = errors.New("result is not available before submission")
	ErrNotExamOwner       = errors.New("exam belongs to another teacher")
)

// Payload errors.
var (
	ErrInvalidOption  = errors.New("selected option must be one of A, B, C or D")
	ErrInvalidTrigger = errors.New("unknown submit trigger")
)
