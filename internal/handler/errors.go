package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// errorCode maps a service error onto the API error code returned to clients.
func errorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrExamNotFound), errors.Is(err, service.ErrAttemptNotFound):
		return response.ErrNotFound
	case errors.Is(err, service.ErrNotEnrolled):
		return response.ErrNotEnrolled
	case errors.Is(err, service.ErrExamNotActive):
		return response.ErrExamNotActive
	case errors.Is(err, service.ErrExamNotStarted):
		return response.ErrExamNotStarted
	case errors.Is(err, service.ErrExamEnded):
		return response.ErrExamEnded
	case errors.Is(err, service.ErrAlreadySubmitted):
		return response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrNoActiveAttempt):
		return response.ErrNoActiveAttempt
	case errors.Is(err, service.ErrInvalidState):
		return response.ErrInvalidState
	case errors.Is(err, service.ErrSessionReplaced):
		return response.ErrSessionReplaced
	case errors.Is(err, service.ErrAttemptExpired):
		return response.ErrAttemptExpired
	case errors.Is(err, service.ErrResultNotAvailable):
		return response.ErrResultNotAvailable
	case errors.Is(err, service.ErrNotExamOwner):
		return response.ErrNotExamOwner
	case errors.Is(err, service.ErrInvalidOption):
		return response.ErrInvalidOption
	case errors.Is(err, service.ErrInvalidTrigger):
		return response.ErrValidation
	default:
		return response.ErrInternal
	}
}

// failService writes the error envelope for err. Unmapped errors are logged
// and surface as INTERNAL_ERROR.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	code := errorCode(err)
	if code == response.ErrInternal {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.FailCode(c, code)
}
