package core

import "sort"

// Identity is the (userId, username) pair obtained from authentication.
type Identity struct {
	UserID   string
	Username string
}

// Binding associates a live connection with its identity and current room.
// Room is empty while the connection is bound but not in any room.
type Binding struct {
	ConnID   string
	UserID   string
	Username string
	Room     string
}

// Presence tracks which connections are online, their identity, and their
// current room. It is owned by the hub goroutine and performs no locking;
// callers outside that goroutine must go through hub commands.
type Presence struct {
	bindings map[string]*Binding
}

// NewPresence constructs an empty registry.
func NewPresence() *Presence {
	return &Presence{bindings: make(map[string]*Binding)}
}

// Bind creates or replaces the binding for connID with no current room.
// Re-binding an already-bound connection resets its displayed identity.
func (p *Presence) Bind(connID, userID, username string) {
	p.bindings[connID] = &Binding{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
	}
}

// Get returns a copy of the binding for connID.
func (p *Presence) Get(connID string) (Binding, bool) {
	b, ok := p.bindings[connID]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// SetRoom updates the current room of an existing binding.
// Returns ErrNotBound if the connection has never bound an identity.
func (p *Presence) SetRoom(connID, room string) error {
	b, ok := p.bindings[connID]
	if !ok {
		return ErrNotBound
	}
	b.Room = room
	return nil
}

// Unbind removes the binding entirely and reports the last known room, if
// any, so the caller can refresh that room's presence list. Safe to call
// for connections that were never bound.
func (p *Presence) Unbind(connID string) (room string, ok bool) {
	b, exists := p.bindings[connID]
	if !exists {
		return "", false
	}
	delete(p.bindings, connID)
	return b.Room, true
}

// ListByRoom returns the identities of all bindings currently in room,
// sorted by username then userId for stable display. Bindings without a
// resolved username are excluded.
func (p *Presence) ListByRoom(room string) []Identity {
	users := make([]Identity, 0)
	for _, b := range p.bindings {
		if b.Room != room || b.Username == "" {
			continue
		}
		users = append(users, Identity{UserID: b.UserID, Username: b.Username})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Username != users[j].Username {
			return users[i].Username < users[j].Username
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}
