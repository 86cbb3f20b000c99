package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeBind   = "bind"
	InboundTypeJoin   = "join"
	InboundTypeMsg    = "msg"
	InboundTypeLogout = "logout"

	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameMessage      = "message"
	EventNameHistory      = "history"
	EventNamePresence     = "presence"
	EventNameAuthRequired = "auth_required"
	EventNameUnauthorized = "unauthorized"
	EventNameMessageError = "message_error"
)

// BindData is sent by the client to attach its authenticated identity to
// the connection. Token is optional; when present the server validates it
// and takes the identity from the claims.
type BindData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// AckData acknowledges a bind request.
type AckData struct {
	Status  string `json:"status"` // "ok" or "error"
	Message string `json:"message,omitempty"`
}

// JoinData requests to join a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries one chat message, live or historical.
type EventMessage struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	Room    string `json:"room"`
	TS      int64  `json:"ts"`
}

// EventHistory delivers the historical snapshot for a freshly joined room.
type EventHistory struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// PresenceEntry is one online user in a presence update.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// EventPresence delivers a room's full online-user list.
type EventPresence struct {
	Room  string          `json:"room"`
	Users []PresenceEntry `json:"users"`
}

// EventNotice carries a human-readable signal (auth_required, unauthorized,
// message_error).
type EventNotice struct {
	Room    string `json:"room,omitempty"`
	Message string `json:"message"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
