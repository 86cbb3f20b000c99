// Package session implements the client-side counterpart of the chat
// protocol: it binds an identity after authentication, joins rooms, sends
// messages, and dispatches server events to caller-supplied handlers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/akorchagin/foliochat/internal/proto"
)

// ErrBindRejected is returned when the server acknowledges a bind with an error.
var ErrBindRejected = errors.New("bind rejected")

// Message is a chat message as seen by the client.
type Message struct {
	ID      string
	Sender  string
	Content string
	Room    string
	SentAt  time.Time
}

// User is one entry of a room's presence list.
type User struct {
	UserID   string
	Username string
}

// State is the locally stored session: enough to re-issue bind and join
// after a reconnect.
type State struct {
	UserID   string
	Username string
	Token    string
	Room     string
}

// Handlers receive server events. Nil handlers are skipped. History and
// presence may arrive in either order after a join; handlers must not
// assume one comes first.
type Handlers struct {
	OnHistory      func(room string, messages []Message)
	OnMessage      func(msg Message)
	OnPresence     func(room string, users []User)
	OnAuthRequired func(reason string)
	OnUnauthorized func(room, reason string)
	OnMessageError func(reason string)
}

// Controller drives one chat connection.
type Controller struct {
	conn     *websocket.Conn
	handlers Handlers

	mu       sync.Mutex
	state    State
	prevRoom string     // room before the last join, for unauthorized rollback
	pending  chan error // outstanding bind ack, at most one
}

// Dial opens a chat connection. The caller must run Listen to dispatch
// events before issuing a Bind.
func Dial(ctx context.Context, url string, handlers Handlers) (*Controller, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Controller{conn: conn, handlers: handlers}, nil
}

// Close closes the underlying connection.
func (c *Controller) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// State returns the locally stored session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bind submits the authenticated identity and waits for the server's
// acknowledgment. On success the identity is remembered for Resume.
func (c *Controller) Bind(ctx context.Context, userID, username, token string) error {
	ack := make(chan error, 1)
	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return errors.New("bind already in flight")
	}
	c.pending = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	if err := c.send(ctx, proto.InboundTypeBind, proto.BindData{
		UserID:   userID,
		Username: username,
		Token:    token,
	}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ack:
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.state.UserID = userID
	c.state.Username = username
	c.state.Token = token
	c.mu.Unlock()
	return nil
}

// Join requests a room. The outcome arrives as history/presence events, or
// an unauthorized notice; the requested room is remembered optimistically
// so a reconnect resumes into it.
func (c *Controller) Join(ctx context.Context, room string) error {
	if err := c.send(ctx, proto.InboundTypeJoin, proto.JoinData{Room: room}); err != nil {
		return err
	}
	c.mu.Lock()
	c.prevRoom = c.state.Room
	c.state.Room = room
	c.mu.Unlock()
	return nil
}

// Send submits a chat message to a room.
func (c *Controller) Send(ctx context.Context, room, content string) error {
	return c.send(ctx, proto.InboundTypeMsg, proto.MsgData{Room: room, Content: content})
}

// Logout drops the server-side binding and clears local state. The
// connection stays open for a later rebind.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.send(ctx, proto.InboundTypeLogout, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()
	return nil
}

// Resume replays a stored session into a fresh connection: bind first,
// then rejoin the last room if there was one. A duplicate join after a
// reconnect is harmless; the server re-sends the snapshot and presence.
func (c *Controller) Resume(ctx context.Context, st State) error {
	if st.UserID == "" {
		return errors.New("no stored identity")
	}
	if err := c.Bind(ctx, st.UserID, st.Username, st.Token); err != nil {
		return err
	}
	if st.Room != "" {
		return c.Join(ctx, st.Room)
	}
	return nil
}

func (c *Controller) send(ctx context.Context, msgType string, data any) error {
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", msgType, err)
		}
		raw = payload
	}
	return wsjson.Write(ctx, c.conn, proto.Inbound{Type: msgType, Data: raw})
}

// outboundEnvelope mirrors proto.Outbound with a raw payload for decoding.
type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// Listen reads and dispatches server messages until the connection closes
// or ctx is cancelled. Returns nil on a clean closure.
func (c *Controller) Listen(ctx context.Context) error {
	for {
		var outbound outboundEnvelope
		if err := wsjson.Read(ctx, c.conn, &outbound); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return err
		}

		switch outbound.Type {
		case proto.OutboundTypeAck:
			c.dispatchAck(outbound.Data)
		case proto.OutboundTypeEvent:
			c.dispatchEvent(outbound)
		}
	}
}

func (c *Controller) dispatchAck(data json.RawMessage) {
	var ack proto.AckData
	if err := json.Unmarshal(data, &ack); err != nil {
		return
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return
	}

	if ack.Status == "ok" {
		pending <- nil
		return
	}
	pending <- fmt.Errorf("%w: %s", ErrBindRejected, ack.Message)
}

func (c *Controller) dispatchEvent(outbound outboundEnvelope) {
	switch outbound.Event {
	case proto.EventNameMessage:
		var evt proto.EventMessage
		if json.Unmarshal(outbound.Data, &evt) == nil && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(fromEventMessage(evt))
		}
	case proto.EventNameHistory:
		var evt proto.EventHistory
		if json.Unmarshal(outbound.Data, &evt) != nil || c.handlers.OnHistory == nil {
			return
		}
		messages := make([]Message, 0, len(evt.Messages))
		for _, m := range evt.Messages {
			messages = append(messages, fromEventMessage(m))
		}
		c.handlers.OnHistory(evt.Room, messages)
	case proto.EventNamePresence:
		var evt proto.EventPresence
		if json.Unmarshal(outbound.Data, &evt) != nil || c.handlers.OnPresence == nil {
			return
		}
		users := make([]User, 0, len(evt.Users))
		for _, u := range evt.Users {
			users = append(users, User{UserID: u.UserID, Username: u.Username})
		}
		c.handlers.OnPresence(evt.Room, users)
	case proto.EventNameAuthRequired:
		var evt proto.EventNotice
		_ = json.Unmarshal(outbound.Data, &evt)
		// The server is about to close the connection; the local session
		// is gone and the user must authenticate again.
		c.mu.Lock()
		c.state = State{}
		c.mu.Unlock()
		if c.handlers.OnAuthRequired != nil {
			c.handlers.OnAuthRequired(evt.Message)
		}
	case proto.EventNameUnauthorized:
		var evt proto.EventNotice
		if json.Unmarshal(outbound.Data, &evt) != nil {
			return
		}
		// The denied join never took effect server-side; roll back the
		// optimistic room so Resume does not retry a forbidden room.
		c.mu.Lock()
		if evt.Room == c.state.Room {
			c.state.Room = c.prevRoom
		}
		c.mu.Unlock()
		if c.handlers.OnUnauthorized != nil {
			c.handlers.OnUnauthorized(evt.Room, evt.Message)
		}
	case proto.EventNameMessageError:
		var evt proto.EventNotice
		if json.Unmarshal(outbound.Data, &evt) == nil && c.handlers.OnMessageError != nil {
			c.handlers.OnMessageError(evt.Message)
		}
	}
}

func fromEventMessage(evt proto.EventMessage) Message {
	return Message{
		ID:      evt.ID,
		Sender:  evt.Sender,
		Content: evt.Content,
		Room:    evt.Room,
		SentAt:  time.Unix(evt.TS, 0),
	}
}
