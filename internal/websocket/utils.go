package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteEvent sends a Response for the given event.
func WriteEvent(conn *websocket.Conn, event Event, id string, data interface{}) error {
	return WriteTyped(conn, Response{Event: event, ID: id, Data: data})
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, id, code, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		ID:    id,
		Code:  code,
		Error: errMsg,
	})
}

// ReadMessage reads one frame and peeks at its envelope. The raw bytes are
// returned so the caller can decode the action-specific body.
func ReadMessage(conn *websocket.Conn) (RequestEnvelope, []byte, error) {
	var env RequestEnvelope
	conn.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return env, nil, err
	}
	err = json.Unmarshal(raw, &env)
	return env, raw, err
}

// Close sends a close frame with the given reason before the caller drops
// the connection.
func Close(conn *websocket.Conn, code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
