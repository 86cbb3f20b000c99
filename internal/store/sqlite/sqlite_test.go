package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/akorchagin/foliochat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "id-1", "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID != "id-1" || created.Username != "alice" {
		t.Fatalf("unexpected user: %+v", created)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != "id-1" || byName.PasswordHash != "hash" {
		t.Fatalf("unexpected user by name: %+v", byName)
	}

	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Usernames are unique.
	if _, err := s.CreateUser(ctx, "id-2", "alice", "hash2"); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestSaveAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "u1", "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, content := range []string{"one", "two", "three"} {
		msg := &store.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			Room:      "general",
			SenderID:  "u1",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message %d: %v", i, err)
		}
	}
	// A message in another room must not leak into general's history.
	if err := s.SaveMessage(ctx, &store.Message{
		ID: "other", Room: "dev-team", SenderID: "u1", Content: "private", CreatedAt: base,
	}); err != nil {
		t.Fatalf("save message: %v", err)
	}

	messages, err := s.ListRecentMessages(ctx, "general", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if messages[i].Content != want {
			t.Fatalf("expected oldest-to-newest order, got %+v", messages)
		}
		if messages[i].SenderName != "alice" {
			t.Fatalf("expected resolved sender name, got %+v", messages[i])
		}
	}
}

func TestListRecentMessagesLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		msg := &store.Message{
			ID:        fmt.Sprintf("m%03d", i),
			Room:      "general",
			SenderID:  "u1",
			Content:   fmt.Sprintf("msg-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message %d: %v", i, err)
		}
	}

	messages, err := s.ListRecentMessages(ctx, "general", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(messages))
	}
	// The 10 oldest are cut; the rest stay in ascending order.
	if messages[0].Content != "msg-10" || messages[49].Content != "msg-59" {
		t.Fatalf("unexpected window: first=%q last=%q", messages[0].Content, messages[49].Content)
	}
}

func TestListMessagesUnknownSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessage(ctx, &store.Message{
		ID: "m1", Room: "general", SenderID: "ghost", Content: "hello",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("save message: %v", err)
	}

	messages, err := s.ListRecentMessages(ctx, "general", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].SenderName != "Unknown" {
		t.Fatalf("expected Unknown sender fallback, got %+v", messages)
	}
}
