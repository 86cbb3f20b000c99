package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akorchagin/foliochat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed while waiting for kind %v", kind)
			}
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func mustBind(t *testing.T, c *Client, userID, username string) {
	t.Helper()

	ack := make(chan error, 1)
	c.Commands <- &Command{
		Kind:     CommandBind,
		Identity: Identity{UserID: userID, Username: username},
		Ack:      ack,
	}
	select {
	case err := <-ack:
		if err != nil {
			t.Fatalf("bind failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bind ack timed out")
	}
}

// memStore is an in-memory MessageStore for hub tests.
type memStore struct {
	mu       sync.Mutex
	messages []*store.Message
	saveErr  error
	listErr  error
}

func (m *memStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	copied := *msg
	m.messages = append(m.messages, &copied)
	return nil
}

func (m *memStore) ListRecentMessages(_ context.Context, room string, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	matched := make([]*store.Message, 0)
	for _, msg := range m.messages {
		if msg.Room == room {
			matched = append(matched, msg)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
