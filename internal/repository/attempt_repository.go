package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const attemptColumns = `id, student_id, exam_id, status, session_token, started_at,
	elapsed_seconds, violation_count, score, max_score, submitted_at,
	submit_trigger, submit_ip, graded_at, created_at, updated_at`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.StudentID, &a.ExamID, &a.Status, &a.SessionToken, &a.StartedAt,
		&a.ElapsedSeconds, &a.ViolationCount, &a.Score, &a.MaxScore, &a.SubmittedAt,
		&a.SubmitTrigger, &a.SubmitIP, &a.GradedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Create inserts a new attempt (student starts the exam).
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (student_id, exam_id, status, started_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (student_id, exam_id) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		a.StudentID, a.ExamID, a.Status, a.StartedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetByStudentAndExam retrieves the attempt for a specific exam-student combination.
func (r *AttemptRepository) GetByStudentAndExam(ctx context.Context, studentID int, examID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE student_id = $1 AND exam_id = $2`,
		studentID, examID))
}

// ListByStudent retrieves all attempts of a student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, e.title, a.status, a.score, a.max_score,
		        a.started_at, a.submitted_at, a.submit_trigger
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.student_id = $1
		 ORDER BY a.started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.AttemptID, &s.ExamID, &s.ExamTitle, &s.Status, &s.Score, &s.MaxScore,
			&s.StartedAt, &s.SubmittedAt, &s.SubmitTrigger); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListAnswers retrieves all answer rows of an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	return listAnswers(ctx, r.pool, attemptID)
}

// ListExpired finds in-progress attempts that ran out of time.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]uuid.UUID, error) {
	if exclude == nil {
		exclude = []uuid.UUID{}
	}
	rows, err := r.pool.Query(ctx,
		`SELECT a.id
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.status = $1
		   AND (a.elapsed_seconds >= e.duration_minutes * 60
		        OR (e.end_time IS NOT NULL AND e.end_time <= $2))
		   AND NOT (a.id = ANY($4))
		 ORDER BY a.started_at
		 LIMIT $3`,
		model.AttemptStatusInProgress, now, limit, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithLock locks the attempt row with SELECT ... FOR UPDATE for the lifetime
// of fn. Concurrent callers on the same attempt queue behind the lock.
func (r *AttemptRepository) WithLock(ctx context.Context, id uuid.UUID, fn func(tx AttemptTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}

	if err := fn(&pgAttemptTx{tx: tx, attempt: a}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listAnswers(ctx context.Context, q querier, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := q.Query(ctx,
		`SELECT attempt_id, question_id, selected_option, is_flagged, is_correct, updated_at
		 FROM attempt_answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.SelectedOption, &a.IsFlagged, &a.IsCorrect, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// pgAttemptTx is the pgx implementation of AttemptTx.
type pgAttemptTx struct {
	tx      pgx.Tx
	attempt *model.Attempt
}

func (t *pgAttemptTx) Attempt() *model.Attempt {
	return t.attempt
}

func (t *pgAttemptTx) SetSessionToken(ctx context.Context, token string) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE attempts SET session_token = $1, updated_at = NOW() WHERE id = $2`,
		token, t.attempt.ID)
	if err != nil {
		return err
	}
	t.attempt.SessionToken = &token
	return nil
}

func (t *pgAttemptTx) RaiseElapsed(ctx context.Context, elapsed int) error {
	var stored int
	err := t.tx.QueryRow(ctx,
		`UPDATE attempts
		 SET elapsed_seconds = GREATEST(elapsed_seconds, $1), updated_at = NOW()
		 WHERE id = $2
		 RETURNING elapsed_seconds`,
		elapsed, t.attempt.ID).Scan(&stored)
	if err != nil {
		return err
	}
	t.attempt.ElapsedSeconds = stored
	return nil
}

func (t *pgAttemptTx) UpsertAnswers(ctx context.Context, changes []AnswerChange) error {
	if len(changes) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, c := range changes {
		b.Queue(
			`INSERT INTO attempt_answers (attempt_id, question_id, selected_option, is_flagged, updated_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
			     selected_option = CASE WHEN $5::boolean THEN EXCLUDED.selected_option ELSE attempt_answers.selected_option END,
			     is_flagged      = CASE WHEN $6::boolean THEN EXCLUDED.is_flagged ELSE attempt_answers.is_flagged END,
			     updated_at      = NOW()`,
			t.attempt.ID, c.QuestionID, c.Option, c.SetFlag && c.Flagged, c.SetOption, c.SetFlag,
		)
	}
	return t.tx.SendBatch(ctx, b).Close()
}

func (t *pgAttemptTx) Answers(ctx context.Context) ([]model.Answer, error) {
	return listAnswers(ctx, t.tx, t.attempt.ID)
}

func (t *pgAttemptTx) AddViolation(ctx context.Context, v *model.Violation) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`UPDATE attempts
		 SET violation_count = violation_count + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING violation_count`, t.attempt.ID).Scan(&count)
	if err != nil {
		return 0, err
	}

	err = t.tx.QueryRow(ctx,
		`INSERT INTO attempt_violations (attempt_id, type, description, occurred_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.attempt.ID, v.Type, v.Description, v.OccurredAt).Scan(&v.ID)
	if err != nil {
		return 0, err
	}

	v.AttemptID = t.attempt.ID
	t.attempt.ViolationCount = count
	return count, nil
}

// Finalize writes per-answer correctness and freezes the attempt.
func (t *pgAttemptTx) Finalize(ctx context.Context, f Finalization) error {
	b := &pgx.Batch{}
	for qid, correct := range f.Correct {
		b.Queue(
			`UPDATE attempt_answers SET is_correct = $1, updated_at = NOW()
			 WHERE attempt_id = $2 AND question_id = $3`,
			correct, t.attempt.ID, qid,
		)
	}
	if b.Len() > 0 {
		if err := t.tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("write answer grades: %w", err)
		}
	}

	var ip *string
	if f.SubmitIP != "" {
		ip = &f.SubmitIP
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, max_score = $3, submitted_at = $4,
		     submit_trigger = $5, submit_ip = $6, updated_at = NOW()
		 WHERE id = $7 AND status = $8`,
		model.AttemptStatusSubmitted, f.Score, f.MaxScore, f.SubmittedAt,
		f.Trigger, ip, t.attempt.ID, model.AttemptStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("finalize attempt %s: status changed concurrently", t.attempt.ID)
	}

	score, maxScore, at, trigger := f.Score, f.MaxScore, f.SubmittedAt, f.Trigger
	t.attempt.Status = model.AttemptStatusSubmitted
	t.attempt.Score = &score
	t.attempt.MaxScore = &maxScore
	t.attempt.SubmittedAt = &at
	t.attempt.SubmitTrigger = &trigger
	t.attempt.SubmitIP = ip
	return nil
}

func (t *pgAttemptTx) MarkGraded(ctx context.Context, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE attempts SET status = $1, graded_at = $2, updated_at = NOW() WHERE id = $3`,
		model.AttemptStatusGraded, at, t.attempt.ID)
	if err != nil {
		return err
	}
	t.attempt.Status = model.AttemptStatusGraded
	t.attempt.GradedAt = &at
	return nil
}
