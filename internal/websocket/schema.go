package websocket

import "github.com/stemsi/exstem-attempt/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHeartbeat Action = "heartbeat"
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing. ID is an
// optional client correlation id echoed back on the reply.
type RequestEnvelope struct {
	Action Action `json:"action"`
	ID     string `json:"id,omitempty"`
}

// AutosaveRequest carries a partial answer set, same shape as the HTTP body.
type AutosaveRequest struct {
	RequestEnvelope
	model.SaveProgressRequest
}

// ViolationRequest reports a proctoring event.
type ViolationRequest struct {
	RequestEnvelope
	model.ReportViolationRequest
}

// SubmitRequest finalizes the attempt.
type SubmitRequest struct {
	RequestEnvelope
	model.SubmitRequest
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventHeartbeat Event = "heartbeat"
	EventSaved     Event = "saved"
	EventViolation Event = "violation"
	EventSubmitted Event = "submitted"
	EventKicked    Event = "kicked"
	EventPong      Event = "pong"
)

// Response is the success reply to an action.
type Response struct {
	Event Event       `json:"event"`
	ID    string      `json:"id,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	ID    string `json:"id,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
