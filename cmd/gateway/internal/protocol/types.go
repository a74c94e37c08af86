package protocol

import (
	"encoding/json"
	"time"

	"github.com/gobwas/ws"

	"github.com/hazlamahedich/trade/pkg/models"
)

// Outbound action types.
const (
	ActionConnected        = "DEBATE/CONNECTED"
	ActionTokenReceived    = "DEBATE/TOKEN_RECEIVED"
	ActionArgumentComplete = "DEBATE/ARGUMENT_COMPLETE"
	ActionTurnChange       = "DEBATE/TURN_CHANGE"
	ActionStatusUpdate     = "DEBATE/STATUS_UPDATE"
	ActionError            = "DEBATE/ERROR"
	ActionPing             = "DEBATE/PING"
)

// Inbound action types.
const (
	ActionPong     = "DEBATE/PONG"
	ActionGetState = "DEBATE/GET_STATE"
)

// Close codes are part of the client contract. Never renumber them.
const (
	CloseUnauthorized         ws.StatusCode = 4001
	CloseOriginNotAllowed     ws.StatusCode = 4003
	CloseDebateNotFound       ws.StatusCode = 4004
	CloseDebateAlreadyRunning ws.StatusCode = 4009
	CloseRateLimited          ws.StatusCode = 4029
	CloseInternalError        ws.StatusCode = 4500
)

var closeReasons = map[ws.StatusCode]string{
	CloseUnauthorized:         "Unauthorized",
	CloseOriginNotAllowed:     "Origin not allowed",
	CloseDebateNotFound:       "Debate not found",
	CloseDebateAlreadyRunning: "Debate already running",
	CloseRateLimited:          "Rate limited",
	CloseInternalError:        "Internal error",
}

// CloseReason returns the human readable reason sent with code.
func CloseReason(code ws.StatusCode) string {
	if r, ok := closeReasons[code]; ok {
		return r
	}
	return ""
}

// Event is the envelope of every server to client message.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
}

func NewEvent(typ string, payload interface{}) Event {
	if payload == nil {
		payload = struct{}{}
	}
	return Event{
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Inbound is a client to server message. Unknown types are ignored.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ConnectedPayload struct {
	DebateID string               `json:"debateId"`
	Status   models.SessionStatus `json:"status"`
}

type StatusPayload struct {
	DebateID string               `json:"debateId"`
	Status   models.SessionStatus `json:"status"`
}

type TokenPayload struct {
	DebateID string         `json:"debateId"`
	Agent    models.Speaker `json:"agent"`
	Token    string         `json:"token"`
	Turn     int            `json:"turn"`
}

type ArgumentPayload struct {
	DebateID string         `json:"debateId"`
	Agent    models.Speaker `json:"agent"`
	Content  string         `json:"content"`
	Turn     int            `json:"turn"`
}

type TurnChangePayload struct {
	DebateID     string         `json:"debateId"`
	CurrentAgent models.Speaker `json:"currentAgent"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by DEBATE/ERROR.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeDebateFailed   = "DEBATE_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
