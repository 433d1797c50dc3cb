package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// MonitorService builds the live view of an exam for its teacher.
type MonitorService struct {
	monitor    repository.MonitorReader
	catalog    Catalog
	defaultMax int
	log        zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitor repository.MonitorReader, catalog Catalog, defaultMaxViolations int, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitor:    monitor,
		catalog:    catalog,
		defaultMax: defaultMaxViolations,
		log:        log.With().Str("component", "monitor_service").Logger(),
	}
}

// MonitorExam is the exam header of a monitor snapshot.
type MonitorExam struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalQuestions  int       `json:"total_questions"`
	MaxViolations   int       `json:"max_violations"`
}

// MonitorStats aggregates attempt counters of one exam. The score figures
// cover completed (submitted or graded) attempts and are zero until one exists.
type MonitorStats struct {
	TotalJoined     int     `json:"total_joined"`
	TotalInProgress int     `json:"total_in_progress"`
	TotalSubmitted  int     `json:"total_submitted"`
	TotalGraded     int     `json:"total_graded"`
	TotalViolations int     `json:"total_violations"`
	Completed       int     `json:"completed"`
	AverageScore    float64 `json:"average_score"`
	HighestScore    int     `json:"highest_score"`
	LowestScore     int     `json:"lowest_score"`
}

// MonitorSnapshot is the full state pushed when a teacher attaches and on
// every periodic refresh.
type MonitorSnapshot struct {
	Exam     MonitorExam             `json:"exam"`
	Stats    MonitorStats            `json:"stats"`
	Students []repository.MonitorRow `json:"students"`
}

// Authorize returns the exam when teacherID owns it.
func (s *MonitorService) Authorize(ctx context.Context, teacherID int, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// Snapshot loads the question count and the attempt rows concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, exam *model.Exam) (*MonitorSnapshot, error) {
	var (
		questions   []model.Question
		rows        []repository.MonitorRow
		questionErr error
		rowsErr     error
		wg          sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		questions, questionErr = s.catalog.ListQuestions(ctx, exam.ID)
	}()
	go func() {
		defer wg.Done()
		rows, rowsErr = s.monitor.ListExamAttempts(ctx, exam.ID)
	}()
	wg.Wait()

	if rowsErr != nil {
		return nil, fmt.Errorf("list exam attempts: %w", rowsErr)
	}
	// The question count is cosmetic; a failed lookup leaves it at zero.
	if questionErr != nil {
		s.log.Warn().Err(questionErr).Str("exam_id", exam.ID.String()).Msg("Failed to load question count")
	}

	snap := &MonitorSnapshot{
		Exam: MonitorExam{
			ID:              exam.ID,
			Title:           exam.Title,
			DurationMinutes: exam.DurationMinutes,
			TotalQuestions:  len(questions),
			MaxViolations:   exam.ViolationLimit(s.defaultMax),
		},
		Students: rows,
	}
	if snap.Students == nil {
		snap.Students = []repository.MonitorRow{}
	}

	total := 0
	for _, r := range rows {
		snap.Stats.TotalJoined++
		snap.Stats.TotalViolations += r.ViolationCount
		switch r.Status {
		case model.AttemptStatusInProgress:
			snap.Stats.TotalInProgress++
		case model.AttemptStatusSubmitted:
			snap.Stats.TotalSubmitted++
		case model.AttemptStatusGraded:
			snap.Stats.TotalGraded++
		}
		if !r.Status.Terminal() {
			continue
		}

		score := 0
		if r.Score != nil {
			score = *r.Score
		}
		if snap.Stats.Completed == 0 {
			snap.Stats.HighestScore, snap.Stats.LowestScore = score, score
		}
		snap.Stats.HighestScore = max(snap.Stats.HighestScore, score)
		snap.Stats.LowestScore = min(snap.Stats.LowestScore, score)
		snap.Stats.Completed++
		total += score
	}
	if snap.Stats.Completed > 0 {
		snap.Stats.AverageScore = float64(total) / float64(snap.Stats.Completed)
	}
	return snap, nil
}
