package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/event"
	"github.com/stemsi/exstem-attempt/internal/metrics"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// expiryRetryBackoff keeps an attempt that failed to finalize out of the
// expiry sweep for a while so it cannot hold the head of every batch.
const expiryRetryBackoff = time.Minute

// Policy is the client cadence echoed with every session.
type Policy struct {
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`
	AutosaveIntervalSeconds  int `json:"autosave_interval_seconds"`
	AutosaveDebounceSeconds  int `json:"autosave_debounce_seconds"`
}

// StartResult is returned by Start.
type StartResult struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	SessionToken string    `json:"session_token"`
	Resumed      bool      `json:"resumed"`
	Policy       Policy    `json:"policy"`
}

// TakeView is everything the exam page needs to render an in-progress attempt.
type TakeView struct {
	AttemptID        uuid.UUID                  `json:"attempt_id"`
	ExamID           uuid.UUID                  `json:"exam_id"`
	Title            string                     `json:"title"`
	DurationMinutes  int                        `json:"duration_minutes"`
	Questions        []model.QuestionForStudent `json:"questions"`
	Answers          []model.SavedAnswer        `json:"answers"`
	ElapsedSeconds   int                        `json:"elapsed_seconds"`
	ViolationCount   int                        `json:"violation_count"`
	MaxViolations    int                        `json:"max_violations"`
	RemainingSeconds int                        `json:"remaining_seconds"`
	Policy           Policy                     `json:"policy"`
}

// SaveResult is returned by SaveProgress. OK is false when the attempt was
// already frozen and nothing was written.
type SaveResult struct {
	OK             bool `json:"ok"`
	ElapsedSeconds int  `json:"elapsed_seconds"`
}

// SubmitResult describes a frozen attempt.
type SubmitResult struct {
	OK               bool                 `json:"ok"`
	AttemptID        uuid.UUID            `json:"attempt_id"`
	Status           model.AttemptStatus  `json:"status"`
	Score            int                  `json:"score"`
	MaxScore         int                  `json:"max_score"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	Trigger          *model.SubmitTrigger `json:"trigger,omitempty"`
	AlreadySubmitted bool                 `json:"already_submitted"`
}

// QuestionResult is one row of a result breakdown.
type QuestionResult struct {
	QuestionID     uuid.UUID              `json:"question_id"`
	Position       int                    `json:"position"`
	Section        string                 `json:"section"`
	Content        string                 `json:"content"`
	Options        []model.QuestionOption `json:"options"`
	Points         int                    `json:"points"`
	SelectedOption *model.Option          `json:"selected_option"`
	CorrectOption  model.Option           `json:"correct_option"`
	IsCorrect      bool                   `json:"is_correct"`
}

// AttemptResult is the graded outcome of a frozen attempt.
type AttemptResult struct {
	AttemptID      uuid.UUID            `json:"attempt_id"`
	ExamID         uuid.UUID            `json:"exam_id"`
	StudentID      int                  `json:"student_id"`
	ExamTitle      string               `json:"exam_title"`
	Status         model.AttemptStatus  `json:"status"`
	Score          int                  `json:"score"`
	MaxScore       int                  `json:"max_score"`
	CorrectCount   int                  `json:"correct_count"`
	QuestionCount  int                  `json:"question_count"`
	ElapsedSeconds int                  `json:"elapsed_seconds"`
	ViolationCount int                  `json:"violation_count"`
	SubmittedAt    *time.Time           `json:"submitted_at,omitempty"`
	SubmitTrigger  *model.SubmitTrigger `json:"submit_trigger,omitempty"`
	Questions      []QuestionResult     `json:"questions"`
}

// submission is the input of a finalize pass. System submissions come from
// the server itself and skip the session check.
type submission struct {
	token   string
	answers map[uuid.UUID]*model.Option
	flags   map[uuid.UUID]bool
	elapsed int
	trigger model.SubmitTrigger
	ip      string
	system  bool
}

// AttemptService drives attempts through IN_PROGRESS → SUBMITTED → GRADED.
// Every mutation of an existing attempt runs under its row lock.
type AttemptService struct {
	attempts repository.AttemptStore
	catalog  Catalog
	arbiter  *SessionArbiter
	recorder *ProgressRecorder
	tracker  *ViolationTracker
	events   event.Publisher
	policy   Policy
	log      zerolog.Logger
	now      func() time.Time

	retryMu    sync.Mutex
	retryAfter map[uuid.UUID]time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts repository.AttemptStore,
	catalog Catalog,
	arbiter *SessionArbiter,
	events event.Publisher,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	if events == nil {
		events = event.Nop{}
	}
	return &AttemptService{
		attempts: attempts,
		catalog:  catalog,
		arbiter:  arbiter,
		recorder: NewProgressRecorder(cfg.ElapsedSkew),
		tracker:  NewViolationTracker(cfg.DefaultMaxViolations),
		events:   events,
		policy: Policy{
			HeartbeatIntervalSeconds: int(cfg.HeartbeatInterval / time.Second),
			AutosaveIntervalSeconds:  int(cfg.AutosaveInterval / time.Second),
			AutosaveDebounceSeconds:  int(cfg.AutosaveDebounce / time.Second),
		},
		log:        log.With().Str("component", "attempt_service").Logger(),
		now:        time.Now,
		retryAfter: make(map[uuid.UUID]time.Time),
	}
}

// ─── Admission ─────────────────────────────────────────────────────────

// Start admits a student to an exam. A first call creates the attempt; a call
// on an in-progress attempt issues a new session token that displaces the
// previous client.
func (s *AttemptService) Start(ctx context.Context, studentID int, examID uuid.UUID, meta model.ClientMeta) (*StartResult, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.catalog.IsEnrolled(ctx, exam.ClassID, studentID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	existing, err := s.attempts.GetByStudentAndExam(ctx, studentID, examID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if existing != nil && existing.Status.Terminal() {
		return nil, ErrAlreadySubmitted
	}

	now := s.now()
	if err := checkWindow(exam, now); err != nil {
		return nil, err
	}

	created := false
	if existing == nil {
		a := &model.Attempt{
			StudentID: studentID,
			ExamID:    examID,
			Status:    model.AttemptStatusInProgress,
			StartedAt: now,
		}
		created, err = s.attempts.Create(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		if created {
			existing = a
		} else {
			// A concurrent Start created the row first.
			existing, err = s.attempts.GetByStudentAndExam(ctx, studentID, examID)
			if err != nil {
				return nil, fmt.Errorf("get attempt: %w", err)
			}
		}
	}

	var token string
	replaced := false
	err = s.attempts.WithLock(ctx, existing.ID, func(tx repository.AttemptTx) error {
		a := tx.Attempt()
		if a.Status.Terminal() {
			return ErrAlreadySubmitted
		}
		replaced = a.SessionToken != nil && *a.SessionToken != ""

		var err error
		token, err = s.arbiter.IssueSession(ctx, tx)
		if err != nil {
			return err
		}
		s.arbiter.Remember(ctx, a.ID, token)
		return nil
	})
	if err != nil {
		return nil, err
	}

	evtType := model.AttemptEventStarted
	if replaced {
		evtType = model.AttemptEventSessionReplaced
	}
	s.publish(ctx, model.AttemptEvent{
		Type:      evtType,
		AttemptID: existing.ID,
		ExamID:    examID,
		StudentID: studentID,
	})
	metrics.AttemptsStarted.WithLabelValues(strconv.FormatBool(!created)).Inc()

	s.log.Info().
		Str("attempt_id", existing.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Bool("resumed", !created).
		Bool("replaced", replaced).
		Str("ip", meta.IP).
		Msg("Attempt started")

	return &StartResult{
		AttemptID:    existing.ID,
		SessionToken: token,
		Resumed:      !created,
		Policy:       s.policy,
	}, nil
}

func checkWindow(exam *model.Exam, now time.Time) error {
	if !exam.Status.StudentVisible() {
		return ErrExamNotActive
	}
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return ErrExamNotStarted
	}
	if exam.EndTime != nil && !now.Before(*exam.EndTime) {
		return ErrExamEnded
	}
	return nil
}

// Heartbeat delegates to the session arbiter.
func (s *AttemptService) Heartbeat(ctx context.Context, studentID int, attemptID uuid.UUID, token string) (*HeartbeatResult, error) {
	return s.arbiter.Heartbeat(ctx, studentID, attemptID, token)
}

// ─── Taking ────────────────────────────────────────────────────────────

// LoadForTaking returns the exam content without the answer key plus the
// attempt's saved state. An attempt whose time ran out is submitted on the
// spot and reported as ErrAttemptExpired.
func (s *AttemptService) LoadForTaking(ctx context.Context, studentID int, attemptID uuid.UUID, token string) (*TakeView, error) {
	a, err := s.loadOwned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrNoActiveAttempt
	}
	if err := s.arbiter.Authorize(a, token); err != nil {
		return nil, err
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	remaining := RemainingSeconds(exam, a, s.now())
	if remaining <= 0 {
		if _, err := s.finalize(ctx, a, submission{
			trigger: model.SubmitTriggerTimerExpiry,
			system:  true,
		}); err != nil {
			return nil, err
		}
		return nil, ErrAttemptExpired
	}

	questions, err := s.catalog.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	view := &TakeView{
		AttemptID:        a.ID,
		ExamID:           exam.ID,
		Title:            exam.Title,
		DurationMinutes:  exam.DurationMinutes,
		Questions:        make([]model.QuestionForStudent, 0, len(questions)),
		Answers:          make([]model.SavedAnswer, 0, len(answers)),
		ElapsedSeconds:   a.ElapsedSeconds,
		ViolationCount:   a.ViolationCount,
		MaxViolations:    s.tracker.Limit(exam),
		RemainingSeconds: remaining,
		Policy:           s.policy,
	}
	for i := range questions {
		view.Questions = append(view.Questions, questions[i].ForStudent())
	}
	for _, ans := range answers {
		view.Answers = append(view.Answers, model.SavedAnswer{
			QuestionID:     ans.QuestionID,
			SelectedOption: ans.SelectedOption,
			IsFlagged:      ans.IsFlagged,
		})
	}
	return view, nil
}

// SaveProgress persists an autosave. Saves against a frozen attempt are
// dropped and reported with OK=false.
func (s *AttemptService) SaveProgress(ctx context.Context, studentID int, attemptID uuid.UUID, token string, req *model.SaveProgressRequest) (*SaveResult, error) {
	a, err := s.loadOwned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		metrics.ProgressSaves.WithLabelValues("frozen").Inc()
		return &SaveResult{OK: false, ElapsedSeconds: a.ElapsedSeconds}, nil
	}

	questions, err := s.catalog.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	res := &SaveResult{}
	err = s.attempts.WithLock(ctx, attemptID, func(tx repository.AttemptTx) error {
		locked := tx.Attempt()
		if locked.Status != model.AttemptStatusInProgress {
			res.ElapsedSeconds = locked.ElapsedSeconds
			return nil
		}
		if err := s.arbiter.Authorize(locked, token); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, tx, questions, req.Answers, req.Flags, req.ElapsedSeconds, s.now()); err != nil {
			return err
		}
		res.OK = true
		res.ElapsedSeconds = tx.Attempt().ElapsedSeconds
		return nil
	})
	if err != nil {
		metrics.ProgressSaves.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if res.OK {
		metrics.ProgressSaves.WithLabelValues("saved").Inc()
	} else {
		metrics.ProgressSaves.WithLabelValues("frozen").Inc()
	}
	return res, nil
}

// ReportViolation records one proctoring violation. It never submits; the
// caller acts on ShouldAutoSubmit.
func (s *AttemptService) ReportViolation(ctx context.Context, studentID int, attemptID uuid.UUID, token string, req *model.ReportViolationRequest) (*model.ViolationResult, error) {
	a, err := s.loadOwned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrInvalidState
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result *model.ViolationResult
	err = s.attempts.WithLock(ctx, attemptID, func(tx repository.AttemptTx) error {
		locked := tx.Attempt()
		if locked.Status != model.AttemptStatusInProgress {
			return ErrInvalidState
		}
		if err := s.arbiter.Authorize(locked, token); err != nil {
			return err
		}

		var err error
		result, err = s.tracker.Record(ctx, tx, exam, req.Type, req.Description, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.Violations.WithLabelValues(metrics.ViolationLabel(result.Type)).Inc()
	s.publish(ctx, model.AttemptEvent{
		Type:           model.AttemptEventViolation,
		AttemptID:      a.ID,
		ExamID:         a.ExamID,
		StudentID:      a.StudentID,
		ViolationType:  result.Type,
		ViolationCount: result.ViolationCount,
		OccurredAt:     now,
	})

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("type", result.Type).
		Int("count", result.ViolationCount).
		Int("max", result.MaxViolations).
		Bool("should_auto_submit", result.ShouldAutoSubmit).
		Msg("Violation recorded")
	return result, nil
}

// ─── Submission ────────────────────────────────────────────────────────

// Submit freezes the attempt and grades it. Repeated or racing calls return
// the result of the single successful pass.
func (s *AttemptService) Submit(ctx context.Context, studentID int, attemptID uuid.UUID, token string, req *model.SubmitRequest, meta model.ClientMeta) (*SubmitResult, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = model.SubmitTriggerManual
	}
	if !trigger.Valid() {
		return nil, ErrInvalidTrigger
	}

	a, err := s.loadOwned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return frozenResult(a, true), nil
	}

	return s.finalize(ctx, a, submission{
		token:   token,
		answers: req.Answers,
		flags:   req.Flags,
		elapsed: req.ElapsedSeconds,
		trigger: trigger,
		ip:      meta.IP,
	})
}

// SubmitExpired finalizes up to limit in-progress attempts whose time ran
// out. A failure on one attempt is logged and does not stop the sweep; the
// attempt is skipped by later sweeps until expiryRetryBackoff has passed.
func (s *AttemptService) SubmitExpired(ctx context.Context, limit int) (int, error) {
	ids, err := s.attempts.ListExpired(ctx, s.now(), limit, s.backedOff())
	if err != nil {
		return 0, fmt.Errorf("list expired attempts: %w", err)
	}

	submitted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}

		a, err := s.attempts.GetByID(ctx, id)
		if err != nil {
			s.deferExpiry(id)
			s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to load expired attempt")
			continue
		}

		res, err := s.finalize(ctx, a, submission{
			trigger: model.SubmitTriggerTimerExpiry,
			system:  true,
		})
		if err != nil {
			s.deferExpiry(id)
			s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to submit expired attempt")
			continue
		}
		s.clearExpiry(id)
		if !res.AlreadySubmitted {
			submitted++
		}
	}

	if submitted > 0 {
		metrics.ExpiredSubmitted.Add(float64(submitted))
	}
	return submitted, nil
}

// backedOff lists attempts still waiting out their retry delay and drops
// entries whose delay has passed.
func (s *AttemptService) backedOff() []uuid.UUID {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	now := s.now()
	var ids []uuid.UUID
	for id, at := range s.retryAfter {
		if now.Before(at) {
			ids = append(ids, id)
			continue
		}
		delete(s.retryAfter, id)
	}
	return ids
}

func (s *AttemptService) deferExpiry(id uuid.UUID) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	s.retryAfter[id] = s.now().Add(expiryRetryBackoff)
}

func (s *AttemptService) clearExpiry(id uuid.UUID) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	delete(s.retryAfter, id)
}

func (s *AttemptService) finalize(ctx context.Context, a *model.Attempt, sub submission) (*SubmitResult, error) {
	questions, err := s.catalog.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result *SubmitResult
	err = s.attempts.WithLock(ctx, a.ID, func(tx repository.AttemptTx) error {
		locked := tx.Attempt()
		if locked.Status.Terminal() {
			result = frozenResult(locked, true)
			return nil
		}
		if !sub.system {
			if err := s.arbiter.Authorize(locked, sub.token); err != nil {
				return err
			}
		}

		if err := s.recorder.Record(ctx, tx, questions, sub.answers, sub.flags, sub.elapsed, now); err != nil {
			return err
		}
		answers, err := tx.Answers(ctx)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}

		grade := Grade(questions, answers)
		if err := tx.Finalize(ctx, repository.Finalization{
			Score:       grade.Score,
			MaxScore:    grade.MaxScore,
			Correct:     grade.Correct,
			SubmittedAt: now,
			Trigger:     sub.trigger,
			SubmitIP:    sub.ip,
		}); err != nil {
			return fmt.Errorf("finalize attempt: %w", err)
		}
		s.arbiter.Forget(ctx, locked.ID)

		result = frozenResult(tx.Attempt(), false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadySubmitted {
		return result, nil
	}

	metrics.Submissions.WithLabelValues(string(sub.trigger)).Inc()
	s.publish(ctx, model.AttemptEvent{
		Type:       model.AttemptEventSubmitted,
		AttemptID:  a.ID,
		ExamID:     a.ExamID,
		StudentID:  a.StudentID,
		Trigger:    sub.trigger,
		Score:      &result.Score,
		MaxScore:   &result.MaxScore,
		OccurredAt: now,
	})

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Int("student_id", a.StudentID).
		Str("trigger", string(sub.trigger)).
		Int("score", result.Score).
		Int("max_score", result.MaxScore).
		Msg("Attempt submitted")
	return result, nil
}

func frozenResult(a *model.Attempt, already bool) *SubmitResult {
	res := &SubmitResult{
		OK:               true,
		AttemptID:        a.ID,
		Status:           a.Status,
		SubmittedAt:      a.SubmittedAt,
		Trigger:          a.SubmitTrigger,
		AlreadySubmitted: already,
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.MaxScore != nil {
		res.MaxScore = *a.MaxScore
	}
	return res
}

// ─── Results & history ─────────────────────────────────────────────────

// GetResult returns the per-question breakdown of a frozen attempt.
func (s *AttemptService) GetResult(ctx context.Context, studentID int, attemptID uuid.UUID) (*AttemptResult, error) {
	a, err := s.loadOwned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Status.Terminal() {
		return nil, ErrResultNotAvailable
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	return s.breakdown(ctx, a, exam)
}

// TeacherResult returns the same breakdown as GetResult to the teacher who
// owns the exam, unanswered questions included.
func (s *AttemptService) TeacherResult(ctx context.Context, teacherID int, attemptID uuid.UUID) (*AttemptResult, error) {
	a, exam, err := s.loadForTeacher(ctx, teacherID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Status.Terminal() {
		return nil, ErrResultNotAvailable
	}
	return s.breakdown(ctx, a, exam)
}

func (s *AttemptService) breakdown(ctx context.Context, a *model.Attempt, exam *model.Exam) (*AttemptResult, error) {
	questions, err := s.catalog.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	answers, err := s.attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	res := &AttemptResult{
		AttemptID:      a.ID,
		ExamID:         a.ExamID,
		StudentID:      a.StudentID,
		ExamTitle:      exam.Title,
		Status:         a.Status,
		QuestionCount:  len(questions),
		ElapsedSeconds: a.ElapsedSeconds,
		ViolationCount: a.ViolationCount,
		SubmittedAt:    a.SubmittedAt,
		SubmitTrigger:  a.SubmitTrigger,
		Questions:      make([]QuestionResult, 0, len(questions)),
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.MaxScore != nil {
		res.MaxScore = *a.MaxScore
	}

	for i := range questions {
		q := &questions[i]
		row := QuestionResult{
			QuestionID:    q.ID,
			Position:      q.Position,
			Section:       q.Section,
			Content:       q.Content,
			Options:       q.ForStudent().Options,
			Points:        q.Weight(),
			CorrectOption: q.CorrectOption,
		}
		if ans, ok := byQuestion[q.ID]; ok {
			row.SelectedOption = ans.SelectedOption
			row.IsCorrect = ans.IsCorrect != nil && *ans.IsCorrect
		}
		if row.IsCorrect {
			res.CorrectCount++
		}
		res.Questions = append(res.Questions, row)
	}
	return res, nil
}

// ExamInfo summarizes an exam for an enrolled student before they start.
func (s *AttemptService) ExamInfo(ctx context.Context, studentID int, examID uuid.UUID) (*model.ExamInfo, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.catalog.IsEnrolled(ctx, exam.ClassID, studentID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}
	if !exam.Status.StudentVisible() {
		return nil, ErrExamNotActive
	}

	questions, err := s.catalog.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	info := &model.ExamInfo{
		ID:              exam.ID,
		Title:           exam.Title,
		Description:     exam.Description,
		DurationMinutes: exam.DurationMinutes,
		MaxViolations:   s.tracker.Limit(exam),
		QuestionCount:   len(questions),
		StartTime:       exam.StartTime,
		EndTime:         exam.EndTime,
		Status:          exam.Status,
	}

	a, err := s.attempts.GetByStudentAndExam(ctx, studentID, examID)
	switch {
	case err == nil:
		info.AttemptID = &a.ID
		info.AttemptStatus = &a.Status
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return info, nil
}

// History lists the student's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	list, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}
	return list, nil
}

// MarkGraded moves a submitted attempt to GRADED after teacher review. The
// frozen score is left untouched. Calling it on a graded attempt is a no-op.
func (s *AttemptService) MarkGraded(ctx context.Context, teacherID int, attemptID uuid.UUID) (*model.Attempt, error) {
	if _, _, err := s.loadForTeacher(ctx, teacherID, attemptID); err != nil {
		return nil, err
	}

	now := s.now()
	var graded *model.Attempt
	transitioned := false
	err := s.attempts.WithLock(ctx, attemptID, func(tx repository.AttemptTx) error {
		locked := tx.Attempt()
		switch locked.Status {
		case model.AttemptStatusInProgress:
			return ErrInvalidState
		case model.AttemptStatusSubmitted:
			if err := tx.MarkGraded(ctx, now); err != nil {
				return fmt.Errorf("mark graded: %w", err)
			}
			transitioned = true
		}
		copied := *tx.Attempt()
		graded = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		s.publish(ctx, model.AttemptEvent{
			Type:       model.AttemptEventGraded,
			AttemptID:  graded.ID,
			ExamID:     graded.ExamID,
			StudentID:  graded.StudentID,
			Score:      graded.Score,
			MaxScore:   graded.MaxScore,
			OccurredAt: now,
		})
		s.log.Info().
			Str("attempt_id", graded.ID.String()).
			Int("teacher_id", teacherID).
			Msg("Attempt graded")
	}
	return graded, nil
}

// ─── Helpers ───────────────────────────────────────────────────────────

// loadForTeacher returns the attempt and its exam when teacherID owns the exam.
func (s *AttemptService) loadForTeacher(ctx context.Context, teacherID int, attemptID uuid.UUID) (*model.Attempt, *model.Exam, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}

	exam, err := s.catalog.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, nil, ErrNotExamOwner
	}
	return a, exam, nil
}

// loadOwned hides attempts of other students behind ErrAttemptNotFound.
func (s *AttemptService) loadOwned(ctx context.Context, studentID int, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptService) publish(ctx context.Context, evt model.AttemptEvent) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn().
			Err(err).
			Str("attempt_id", evt.AttemptID.String()).
			Str("type", string(evt.Type)).
			Msg("Failed to publish attempt event")
	}
}
