package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// actionTimeout bounds the service call behind a single WebSocket action.
const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the attempt stream: heartbeat, autosave, violation reports
// and submission over one socket.
type WSHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsSession is the per-connection state passed to action handlers.
type wsSession struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	studentID int
	attemptID uuid.UUID
	token     string
	meta      model.ClientMeta
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream?token=<jwt>&session=<session token>
func (h *WSHandler) AttemptStream(c *gin.Context) {
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

	token := c.Query("session")
	if token == "" {
		token = c.GetHeader(HeaderSessionToken)
	}

	// Reject stale sessions before upgrading so the client gets a plain
	// HTTP error it can act on.
	hb, err := h.attempts.Heartbeat(c.Request.Context(), claims.UserID, attemptID, token)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	switch {
	case hb.Kicked:
		response.FailCode(c, response.ErrSessionReplaced)
		return
	case hb.Reason == service.ReasonAlreadySubmitted:
		response.FailCode(c, response.ErrAlreadySubmitted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()

	s := &wsSession{
		conn:      conn,
		log:       wsLog,
		studentID: claims.UserID,
		attemptID: attemptID,
		token:     token,
		meta:      clientMeta(c),
	}

	s.log.Info().Msg("Student connected")

	for {
		env, raw, err := ws.ReadMessage(conn)
		if err != nil {
			if raw != nil {
				ws.WriteError(conn, "", string(response.ErrInvalidPayload), "malformed message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		var done bool
		switch env.Action {
		case ws.ActionHeartbeat:
			done = h.handleHeartbeat(s, env)
		case ws.ActionAutosave:
			done = h.handleAutosave(s, env, raw)
		case ws.ActionViolation:
			done = h.handleViolation(s, env, raw)
		case ws.ActionSubmit:
			done = h.handleSubmit(s, env, raw)
		case ws.ActionPing:
			ws.WriteEvent(conn, ws.EventPong, env.ID, nil)
		default:
			s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, env.ID, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
		if done {
			return
		}
	}
}

// handleHeartbeat and its siblings return true when the stream should end.
func (h *WSHandler) handleHeartbeat(s *wsSession, env ws.RequestEnvelope) bool {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res, err := h.attempts.Heartbeat(ctx, s.studentID, s.attemptID, s.token)
	if err != nil {
		return h.writeServiceError(s, env.ID, err)
	}
	if res.Kicked {
		ws.WriteEvent(s.conn, ws.EventKicked, env.ID, res)
		ws.Close(s.conn, websocket.ClosePolicyViolation, res.Reason)
		return true
	}
	ws.WriteEvent(s.conn, ws.EventHeartbeat, env.ID, res)
	return false
}

func (h *WSHandler) handleAutosave(s *wsSession, env ws.RequestEnvelope, raw []byte) bool {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrInvalidPayload), err.Error())
		return false
	}
	if fields := validator.Struct(&req.SaveProgressRequest); fields != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrValidation), firstField(fields))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res, err := h.attempts.SaveProgress(ctx, s.studentID, s.attemptID, s.token, &req.SaveProgressRequest)
	if err != nil {
		return h.writeServiceError(s, env.ID, err)
	}
	ws.WriteEvent(s.conn, ws.EventSaved, env.ID, res)
	return false
}

func (h *WSHandler) handleViolation(s *wsSession, env ws.RequestEnvelope, raw []byte) bool {
	var req ws.ViolationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrInvalidPayload), err.Error())
		return false
	}
	if fields := validator.Struct(&req.ReportViolationRequest); fields != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrValidation), firstField(fields))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res, err := h.attempts.ReportViolation(ctx, s.studentID, s.attemptID, s.token, &req.ReportViolationRequest)
	if err != nil {
		return h.writeServiceError(s, env.ID, err)
	}
	ws.WriteEvent(s.conn, ws.EventViolation, env.ID, res)
	return false
}

func (h *WSHandler) handleSubmit(s *wsSession, env ws.RequestEnvelope, raw []byte) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrInvalidPayload), err.Error())
		return false
	}
	if fields := validator.Struct(&req.SubmitRequest); fields != nil {
		ws.WriteError(s.conn, env.ID, string(response.ErrValidation), firstField(fields))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	res, err := h.attempts.Submit(ctx, s.studentID, s.attemptID, s.token, &req.SubmitRequest, s.meta)
	if err != nil {
		return h.writeServiceError(s, env.ID, err)
	}

	s.log.Info().
		Int("score", res.Score).
		Int("max_score", res.MaxScore).
		Bool("already_submitted", res.AlreadySubmitted).
		Msg("Attempt submitted over WebSocket")

	ws.WriteEvent(s.conn, ws.EventSubmitted, env.ID, res)
	ws.Close(s.conn, websocket.CloseNormalClosure, "submitted")
	return true
}

// writeServiceError reports err to the client. A replaced session ends the
// stream; every other error leaves it open.
func (h *WSHandler) writeServiceError(s *wsSession, id string, err error) bool {
	code := errorCode(err)
	if code == response.ErrInternal {
		s.log.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(s.conn, id, string(code), response.GetMessage(code))

	if code == response.ErrSessionReplaced {
		ws.Close(s.conn, websocket.ClosePolicyViolation, service.ReasonSessionReplaced)
		return true
	}
	return false
}

// firstField flattens a validator field map into one message.
func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return ""
}
