package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// ExamHandler handles the teacher endpoints that act on an exam's attempts.
type ExamHandler struct {
	attempts *service.AttemptService
	catalog  *service.ExamCatalog
	monitor  *service.MonitorService
	log      zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	attempts *service.AttemptService,
	catalog *service.ExamCatalog,
	monitor *service.MonitorService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		attempts: attempts,
		catalog:  catalog,
		monitor:  monitor,
		log:      log.With().Str("component", "exam_handler").Logger(),
	}
}

// RefreshExamCache godoc
// POST /api/v1/teacher/exams/:exam_id/refresh-cache
// Drops the cached exam and question set so the next read goes to Postgres.
func (h *ExamHandler) RefreshExamCache(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.monitor.Authorize(c.Request.Context(), claims.UserID, examID); err != nil {
		failService(c, h.log, err)
		return
	}

	if err := h.catalog.Invalidate(c.Request.Context(), examID); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam cache refreshed successfully"})
}

// GradeAttempt godoc
// POST /api/v1/teacher/attempts/:attempt_id/grade
// Marks a submitted attempt as GRADED. Only the exam's teacher may do so.
func (h *ExamHandler) GradeAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.MarkGraded(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetAttemptResult godoc
// GET /api/v1/teacher/attempts/:attempt_id/result
// Returns the per-question breakdown of a submitted attempt to the exam's teacher.
func (h *ExamHandler) GetAttemptResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attempts.TeacherResult(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
