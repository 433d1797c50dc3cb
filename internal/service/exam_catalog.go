package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// Catalog is the read-only exam data the attempt lifecycle depends on.
type Catalog interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	IsEnrolled(ctx context.Context, classID, studentID int) (bool, error)
}

// ExamCatalog reads exams, questions and enrollment from PostgreSQL and keeps
// a JSON copy in Redis for ttl. A nil Redis client disables caching.
type ExamCatalog struct {
	exams       repository.ExamReader
	enrollments repository.EnrollmentReader
	rdb         *redis.Client
	ttl         time.Duration
	log         zerolog.Logger
}

// NewExamCatalog creates a new ExamCatalog.
func NewExamCatalog(
	exams repository.ExamReader,
	enrollments repository.EnrollmentReader,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *ExamCatalog {
	return &ExamCatalog{
		exams:       exams,
		enrollments: enrollments,
		rdb:         rdb,
		ttl:         ttl,
		log:         log.With().Str("component", "exam_catalog").Logger(),
	}
}

// GetExam returns ErrExamNotFound for unknown exams.
func (c *ExamCatalog) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var exam model.Exam
	if c.readCache(ctx, config.CacheKey.ExamKey(examID.String()), &exam) {
		return &exam, nil
	}

	e, err := c.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	c.writeCache(ctx, config.CacheKey.ExamKey(examID.String()), e)
	return e, nil
}

// ListQuestions returns the exam's questions in display order, answer key included.
func (c *ExamCatalog) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	var questions []model.Question
	if c.readCache(ctx, config.CacheKey.ExamQuestionsKey(examID.String()), &questions) {
		return questions, nil
	}

	questions, err := c.exams.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	c.writeCache(ctx, config.CacheKey.ExamQuestionsKey(examID.String()), questions)
	return questions, nil
}

func (c *ExamCatalog) IsEnrolled(ctx context.Context, classID, studentID int) (bool, error) {
	key := config.CacheKey.EnrollmentKey(classID, studentID)

	var enrolled bool
	if c.readCache(ctx, key, &enrolled) {
		return enrolled, nil
	}

	enrolled, err := c.enrollments.IsEnrolled(ctx, classID, studentID)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}

	// Only positive answers are cached so a newly enrolled student is admitted
	// without waiting for the TTL.
	if enrolled {
		c.writeCache(ctx, key, enrolled)
	}
	return enrolled, nil
}

// Invalidate drops the cached exam record and question set.
func (c *ExamCatalog) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}

	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.ExamKey(examID.String()))
	pipe.Del(ctx, config.CacheKey.ExamQuestionsKey(examID.String()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate exam cache: %w", err)
	}

	c.log.Info().Str("exam_id", examID.String()).Msg("Exam cache invalidated")
	return nil
}

func (c *ExamCatalog) readCache(ctx context.Context, key string, dst any) bool {
	if c.rdb == nil {
		return false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to database")
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry")
		return false
	}
	return true
}

func (c *ExamCatalog) writeCache(ctx context.Context, key string, v any) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
