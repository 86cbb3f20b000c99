package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akorchagin/foliochat/internal/store"
)

const defaultHistoryLimit = 50

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub runs the chat session protocol. All state (presence registry, room
// broadcast groups) is touched only from the Run goroutine; per-connection
// pumps feed commands into it, so every command is handled to completion
// before the next one from the same connection is dequeued.
type Hub struct {
	store        store.MessageStore
	presence     *Presence
	policy       *Policy
	historyLimit int
	log          zerolog.Logger

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand

	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub. store may be nil (history is then empty and
// messages are broadcast without persistence; used by tests), policy may be
// nil (all rooms open), logger may be nil.
func NewHub(st store.MessageStore, presence *Presence, policy *Policy, historyLimit int, logger *zerolog.Logger) *Hub {
	if presence == nil {
		presence = NewPresence()
	}
	if policy == nil {
		policy = NewPolicy("", nil)
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Hub{
		store:        st,
		presence:     presence,
		policy:       policy,
		historyLimit: historyLimit,
		log:          lg,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		commands:     make(chan clientCommand),
		clients:      make(map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
	}
}

// RegisterClient hands a new connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient performs disconnect cleanup. Idempotent with logout:
// if the binding is already gone only the connection state is released.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and client commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.addClient(ctx, c)
		case c := <-h.unregister:
			h.dropClient(c)
		case cc := <-h.commands:
			h.handle(ctx, cc.client, cc.cmd)
		}
	}
}

func (h *Hub) addClient(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = struct{}{}
	h.log.Debug().Str("conn_id", c.ID).Msg("client connected")

	// Pump the client's commands into the hub loop, preserving order.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cmd, ok := <-c.Commands:
				if !ok {
					return
				}
				select {
				case h.commands <- clientCommand{client: c, cmd: cmd}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// dropClient is the disconnect transition: logout cleanup plus release of
// the connection itself. Safe to run after an explicit logout.
func (h *Hub) dropClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)

	room, bound := h.presence.Unbind(c.ID)
	if bound && room != "" {
		h.removeFromRoom(c, room)
		h.broadcastPresence(room)
	}
	close(c.Events)
	h.log.Debug().Str("conn_id", c.ID).Msg("client disconnected")
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	// The connection may have dropped while this command sat in its pump;
	// never act for, or signal to, a client that is already gone.
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandBind:
		h.handleBind(c, cmd)
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandLogout:
		h.handleLogout(c)
	}
}

func (h *Hub) handleBind(c *Client, cmd *Command) {
	ack := func(err error) {
		if cmd.Ack != nil {
			cmd.Ack <- err
		}
	}

	id := cmd.Identity
	if id.UserID == "" || id.Username == "" {
		ack(coreError(ErrCodeInvalidIdentity, "missing user id or username"))
		return
	}

	// Re-binding starts a fresh session: a previous room membership does
	// not survive the identity change, so the registry and the broadcast
	// group stay in step.
	if prev, ok := h.presence.Get(c.ID); ok && prev.Room != "" {
		h.removeFromRoom(c, prev.Room)
		h.presence.Bind(c.ID, id.UserID, id.Username)
		h.broadcastPresence(prev.Room)
	} else {
		h.presence.Bind(c.ID, id.UserID, id.Username)
	}

	h.log.Info().Str("conn_id", c.ID).Str("user_id", id.UserID).Str("username", id.Username).Msg("identity bound")
	ack(nil)
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, room string) {
	binding, bound := h.presence.Get(c.ID)
	if !bound {
		// Fatal for the connection: deliver the signal, then terminate.
		// The buffered event survives the channel close below.
		h.log.Warn().Str("conn_id", c.ID).Str("room", room).Msg("join before bind")
		h.sendEvent(c, &Event{Kind: EventAuthRequired, Reason: "Please log in to join a room."})
		h.dropClient(c)
		return
	}

	if !h.policy.CanJoin(binding.UserID, room) {
		h.log.Warn().Str("user_id", binding.UserID).Str("room", room).Msg("unauthorized join attempt")
		h.sendEvent(c, &Event{Kind: EventUnauthorized, Room: room, Reason: "You do not have permission to join this room."})
		return
	}

	prev := binding.Room
	if prev != room {
		// Leave-old and join-new mutate together so no presence read can
		// see the connection in both rooms, or in neither.
		if prev != "" {
			h.removeFromRoom(c, prev)
		}
		h.addToRoom(c, room)
		if err := h.presence.SetRoom(c.ID, room); err != nil {
			h.log.Error().Err(err).Str("conn_id", c.ID).Msg("set room on unbound connection")
			return
		}
		if prev != "" {
			h.broadcastPresence(prev)
		}
		h.log.Info().Str("username", binding.Username).Str("room", room).Msg("joined room")
	}

	h.sendHistory(ctx, c, room)
	h.broadcastPresence(room)
}

func (h *Hub) sendHistory(ctx context.Context, c *Client, room string) {
	messages := make([]Message, 0)
	if h.store != nil {
		stored, err := h.store.ListRecentMessages(ctx, room, h.historyLimit)
		if err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("load message history")
			h.sendEvent(c, &Event{Kind: EventMessageError, Reason: "Failed to load historical messages."})
			return
		}
		for _, m := range stored {
			messages = append(messages, Message{
				ID:        m.ID,
				Room:      m.Room,
				Sender:    m.SenderName,
				SenderID:  m.SenderID,
				Content:   m.Content,
				CreatedAt: m.CreatedAt,
			})
		}
	}
	h.sendEvent(c, &Event{Kind: EventHistory, Room: room, Messages: messages})
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	binding, bound := h.presence.Get(c.ID)
	if !bound || binding.Room != cmd.Room {
		// The declared room must match current membership exactly.
		h.sendEvent(c, &Event{Kind: EventMessageError, Reason: "Failed to send message: Not authenticated or in wrong room."})
		return
	}
	if strings.TrimSpace(cmd.Content) == "" {
		h.sendEvent(c, &Event{Kind: EventMessageError, Reason: "Failed to send message: Empty message."})
		return
	}

	msg := Message{
		ID:        uuid.NewString(),
		Room:      cmd.Room,
		Sender:    binding.Username,
		SenderID:  binding.UserID,
		Content:   cmd.Content,
		CreatedAt: time.Now().UTC(),
	}

	if h.store != nil {
		err := h.store.SaveMessage(ctx, &store.Message{
			ID:        msg.ID,
			Room:      msg.Room,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
		if err != nil {
			h.log.Error().Err(err).Str("room", msg.Room).Msg("persist message")
			h.sendEvent(c, &Event{Kind: EventMessageError, Reason: "Failed to send message due to server error."})
			return
		}
	}

	// Persisted first, then fanned out to everyone in the room, sender
	// included: the sender's UI relies on its own echo.
	h.broadcast(msg.Room, &Event{Kind: EventRoomMessage, Room: msg.Room, Message: msg})
}

// handleLogout drops the binding but keeps the connection open so the
// client may rebind.
func (h *Hub) handleLogout(c *Client) {
	room, bound := h.presence.Unbind(c.ID)
	if !bound {
		return
	}
	if room != "" {
		h.removeFromRoom(c, room)
		h.broadcastPresence(room)
	}
	h.log.Info().Str("conn_id", c.ID).Msg("logged out")
}

func (h *Hub) addToRoom(c *Client, room string) {
	group, ok := h.rooms[room]
	if !ok {
		group = make(map[*Client]struct{})
		h.rooms[room] = group
	}
	group[c] = struct{}{}
}

func (h *Hub) removeFromRoom(c *Client, room string) {
	group, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) broadcastPresence(room string) {
	h.broadcast(room, &Event{Kind: EventPresence, Room: room, Users: h.presence.ListByRoom(room)})
}

func (h *Hub) broadcast(room string, event *Event) {
	for client := range h.rooms[room] {
		h.sendEvent(client, event)
	}
}

func (h *Hub) sendEvent(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
		h.log.Warn().Str("conn_id", c.ID).Int("kind", int(event.Kind)).Msg("event dropped")
	}
}
