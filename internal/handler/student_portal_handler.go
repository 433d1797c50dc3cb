package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// HeaderSessionToken carries the attempt session token issued by Start.
const HeaderSessionToken = "X-Session-Token"

// StudentPortalHandler handles student-facing endpoints (exam info, attempts).
type StudentPortalHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(attempts *service.AttemptService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		attempts: attempts,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetExamInfo godoc
// GET /api/v1/student/exams/:exam_id
// Returns the pre-start summary of an exam, including any existing attempt.
func (h *StudentPortalHandler) GetExamInfo(c *gin.Context) {
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

	info, err := h.attempts.ExamInfo(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": info})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts a new attempt or resumes the in-progress one. Every call issues a
// fresh session token, invalidating any other open tab or device.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
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

	res, err := h.attempts.Start(c.Request.Context(), claims.UserID, examID, clientMeta(c))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// ListAttempts godoc
// GET /api/v1/student/attempts
func (h *StudentPortalHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	history, err := h.attempts.History(c.Request.Context(), claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": history})
}

// TakeAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the questions (without answer keys), saved answers and timer state.
func (h *StudentPortalHandler) TakeAttempt(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	view, err := h.attempts.LoadForTaking(c.Request.Context(), claims.UserID, attemptID, c.GetHeader(HeaderSessionToken))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Heartbeat godoc
// POST /api/v1/student/attempts/:attempt_id/heartbeat
// Reports whether the caller still owns the attempt session.
func (h *StudentPortalHandler) Heartbeat(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	res, err := h.attempts.Heartbeat(c.Request.Context(), claims.UserID, attemptID, c.GetHeader(HeaderSessionToken))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SaveProgress godoc
// PUT /api/v1/student/attempts/:attempt_id/progress
func (h *StudentPortalHandler) SaveProgress(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.SaveProgress(c.Request.Context(), claims.UserID, attemptID, c.GetHeader(HeaderSessionToken), &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ReportViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
func (h *StudentPortalHandler) ReportViolation(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.ReportViolation(c.Request.Context(), claims.UserID, attemptID, c.GetHeader(HeaderSessionToken), &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// The body is optional; an empty body submits whatever was last autosaved.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.attempts.Submit(c.Request.Context(), claims.UserID, attemptID, c.GetHeader(HeaderSessionToken), &req, clientMeta(c))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims, attemptID, ok := attemptParams(c)
	if !ok {
		return
	}

	res, err := h.attempts.GetResult(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// attemptParams extracts the caller's claims and the :attempt_id route
// parameter, writing the error response itself when either is missing.
func attemptParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, attemptID, true
}

func clientMeta(c *gin.Context) model.ClientMeta {
	return model.ClientMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
