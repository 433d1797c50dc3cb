// Package repotest provides an in-memory implementation of the repository
// interfaces for service and handler tests. It keeps the same locking and
// commit semantics as the Postgres repositories: WithLock serializes callers
// per attempt and discards staged writes when the callback fails.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type enrollment struct {
	classID   int
	studentID int
}

// Store is an in-memory exam catalog and attempt store.
type Store struct {
	mu          sync.Mutex
	exams       map[uuid.UUID]model.Exam
	questions   map[uuid.UUID][]model.Question
	enrollments map[enrollment]bool
	attempts    map[uuid.UUID]model.Attempt
	answers     map[uuid.UUID]map[uuid.UUID]model.Answer
	violations  map[uuid.UUID][]model.Violation
	locks       map[uuid.UUID]*sync.Mutex

	nextViolationID int64
	finalizations   int
	failLock        error
	brokenLocks     map[uuid.UUID]error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		exams:       make(map[uuid.UUID]model.Exam),
		questions:   make(map[uuid.UUID][]model.Question),
		enrollments: make(map[enrollment]bool),
		attempts:    make(map[uuid.UUID]model.Attempt),
		answers:     make(map[uuid.UUID]map[uuid.UUID]model.Answer),
		violations:  make(map[uuid.UUID][]model.Violation),
		locks:       make(map[uuid.UUID]*sync.Mutex),
		brokenLocks: make(map[uuid.UUID]error),
	}
}

// ─── Fixtures ──────────────────────────────────────────────────────────

// AddExam registers an exam and its questions.
func (s *Store) AddExam(e model.Exam, questions ...model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range questions {
		questions[i].ExamID = e.ID
	}
	s.exams[e.ID] = e
	s.questions[e.ID] = questions
}

// Enroll adds a student to a class roster.
func (s *Store) Enroll(classID, studentID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[enrollment{classID, studentID}] = true
}

// BreakLock makes every WithLock call on id return err until it is passed
// a nil err.
func (s *Store) BreakLock(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.brokenLocks, id)
		return
	}
	s.brokenLocks[id] = err
}

// FailNextLock makes the next WithLock call return err without running fn.
func (s *Store) FailNextLock(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLock = err
}

// Violations returns the violation log of an attempt.
func (s *Store) Violations(attemptID uuid.UUID) []model.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Violation(nil), s.violations[attemptID]...)
}

// Finalizations counts committed Finalize calls across all attempts.
func (s *Store) Finalizations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizations
}

// SetElapsed overwrites the stored elapsed time of an attempt.
func (s *Store) SetElapsed(attemptID uuid.UUID, elapsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.attempts[attemptID]
	a.ElapsedSeconds = elapsed
	s.attempts[attemptID] = a
}

// ─── ExamReader / EnrollmentReader ─────────────────────────────────────

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.questions[examID]...), nil
}

func (s *Store) IsEnrolled(ctx context.Context, classID, studentID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrollments[enrollment{classID, studentID}], nil
}

// ─── AttemptStore ──────────────────────────────────────────────────────

// Attempts returns the AttemptStore view of the Store. The method sets of
// ExamReader and AttemptStore share the name GetByID, so the attempt side
// lives on a separate type.
func (s *Store) Attempts() *AttemptStore {
	return &AttemptStore{s: s}
}

// AttemptStore is the in-memory repository.AttemptStore.
type AttemptStore struct {
	s *Store
}

var _ repository.AttemptStore = (*AttemptStore)(nil)

func (r *AttemptStore) Create(ctx context.Context, a *model.Attempt) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.StudentID == a.StudentID && existing.ExamID == a.ExamID {
			return false, nil
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = a.StartedAt
	a.UpdatedAt = a.StartedAt
	s.attempts[a.ID] = *a
	return true, nil
}

func (r *AttemptStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r *AttemptStore) GetByStudentAndExam(ctx context.Context, studentID int, examID uuid.UUID) (*model.Attempt, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.StudentID == studentID && a.ExamID == examID {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AttemptStore) ListByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AttemptSummary
	for _, a := range s.attempts {
		if a.StudentID != studentID {
			continue
		}
		out = append(out, model.AttemptSummary{
			AttemptID:     a.ID,
			ExamID:        a.ExamID,
			ExamTitle:     s.exams[a.ExamID].Title,
			Status:        a.Status,
			Score:         a.Score,
			MaxScore:      a.MaxScore,
			StartedAt:     a.StartedAt,
			SubmittedAt:   a.SubmittedAt,
			SubmitTrigger: a.SubmitTrigger,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *AttemptStore) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAnswers(s.answers[attemptID]), nil
}

func (r *AttemptStore) ListExpired(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []model.Attempt
	for _, a := range s.attempts {
		if a.Status != model.AttemptStatusInProgress || slices.Contains(exclude, a.ID) {
			continue
		}
		e := s.exams[a.ExamID]
		if a.ElapsedSeconds >= e.DurationSeconds() || (e.EndTime != nil && !e.EndTime.After(now)) {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].StartedAt.Before(expired[j].StartedAt) })
	ids := make([]uuid.UUID, 0, len(expired))
	for i, a := range expired {
		if i == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r *AttemptStore) WithLock(ctx context.Context, id uuid.UUID, fn func(tx repository.AttemptTx) error) error {
	s := r.s
	s.mu.Lock()
	if err := s.failLock; err != nil {
		s.failLock = nil
		s.mu.Unlock()
		return err
	}
	if err := s.brokenLocks[id]; err != nil {
		s.mu.Unlock()
		return err
	}
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	a, ok := s.attempts[id]
	if !ok {
		s.mu.Unlock()
		return repository.ErrNotFound
	}
	staged := make(map[uuid.UUID]model.Answer, len(s.answers[id]))
	for k, v := range s.answers[id] {
		staged[k] = v
	}
	s.mu.Unlock()

	tx := &memTx{store: s, attempt: &a, answers: staged}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[id] = *tx.attempt
	s.answers[id] = tx.answers
	for _, v := range tx.violations {
		s.nextViolationID++
		v.ID = s.nextViolationID
		s.violations[id] = append(s.violations[id], v)
	}
	if tx.finalized {
		s.finalizations++
	}
	return nil
}

// ─── MonitorReader ─────────────────────────────────────────────────────

func (s *Store) ListExamAttempts(ctx context.Context, examID uuid.UUID) ([]repository.MonitorRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.MonitorRow
	for _, a := range s.attempts {
		if a.ExamID != examID {
			continue
		}
		answered := 0
		for _, ans := range s.answers[a.ID] {
			if ans.SelectedOption != nil {
				answered++
			}
		}
		out = append(out, repository.MonitorRow{
			AttemptID:      a.ID,
			StudentID:      a.StudentID,
			Status:         a.Status,
			ElapsedSeconds: a.ElapsedSeconds,
			ViolationCount: a.ViolationCount,
			AnsweredCount:  answered,
			Score:          a.Score,
			MaxScore:       a.MaxScore,
			StartedAt:      a.StartedAt,
			SubmittedAt:    a.SubmittedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// ─── Transaction ───────────────────────────────────────────────────────

type memTx struct {
	store      *Store
	attempt    *model.Attempt
	answers    map[uuid.UUID]model.Answer
	violations []model.Violation
	finalized  bool
}

func (t *memTx) Attempt() *model.Attempt {
	return t.attempt
}

func (t *memTx) SetSessionToken(ctx context.Context, token string) error {
	t.attempt.SessionToken = &token
	return nil
}

func (t *memTx) RaiseElapsed(ctx context.Context, elapsed int) error {
	if elapsed > t.attempt.ElapsedSeconds {
		t.attempt.ElapsedSeconds = elapsed
	}
	return nil
}

func (t *memTx) UpsertAnswers(ctx context.Context, changes []repository.AnswerChange) error {
	for _, c := range changes {
		ans, ok := t.answers[c.QuestionID]
		if !ok {
			ans = model.Answer{AttemptID: t.attempt.ID, QuestionID: c.QuestionID}
		}
		if c.SetOption {
			ans.SelectedOption = c.Option
		}
		if c.SetFlag {
			ans.IsFlagged = c.Flagged
		}
		ans.UpdatedAt = time.Now()
		t.answers[c.QuestionID] = ans
	}
	return nil
}

func (t *memTx) Answers(ctx context.Context) ([]model.Answer, error) {
	return sortedAnswers(t.answers), nil
}

func (t *memTx) AddViolation(ctx context.Context, v *model.Violation) (int, error) {
	v.AttemptID = t.attempt.ID
	t.attempt.ViolationCount++
	t.violations = append(t.violations, *v)
	return t.attempt.ViolationCount, nil
}

func (t *memTx) Finalize(ctx context.Context, f repository.Finalization) error {
	if t.attempt.Status != model.AttemptStatusInProgress {
		return fmt.Errorf("finalize attempt %s: status changed concurrently", t.attempt.ID)
	}
	for qid, correct := range f.Correct {
		ans, ok := t.answers[qid]
		if !ok {
			continue
		}
		c := correct
		ans.IsCorrect = &c
		t.answers[qid] = ans
	}

	score, maxScore, at, trigger := f.Score, f.MaxScore, f.SubmittedAt, f.Trigger
	t.attempt.Status = model.AttemptStatusSubmitted
	t.attempt.Score = &score
	t.attempt.MaxScore = &maxScore
	t.attempt.SubmittedAt = &at
	t.attempt.SubmitTrigger = &trigger
	if f.SubmitIP != "" {
		ip := f.SubmitIP
		t.attempt.SubmitIP = &ip
	}
	t.finalized = true
	return nil
}

func (t *memTx) MarkGraded(ctx context.Context, at time.Time) error {
	if !t.attempt.Status.Terminal() {
		return errors.New("attempt is not submitted")
	}
	t.attempt.Status = model.AttemptStatusGraded
	t.attempt.GradedAt = &at
	return nil
}

func sortedAnswers(m map[uuid.UUID]model.Answer) []model.Answer {
	out := make([]model.Answer, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID.String() < out[j].QuestionID.String() })
	return out
}
