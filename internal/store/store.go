package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
// SenderName is resolved from the users table at read time and is empty on writes.
type Message struct {
	ID         string
	Room       string
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  time.Time
}

// UserStore handles account persistence.
type UserStore interface {
	// CreateUser inserts a new user with a pre-hashed password.
	CreateUser(ctx context.Context, id, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message to storage.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListRecentMessages returns at most limit of the newest messages in a room,
	// ordered oldest to newest, with sender display names resolved.
	ListRecentMessages(ctx context.Context, room string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
