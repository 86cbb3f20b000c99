package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akorchagin/foliochat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room       TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(room, created_at DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a new user with a pre-hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, id, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (id, username, password_hash)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, username, passwordHash); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, room, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.Room, msg.SenderID, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListRecentMessages returns at most limit of the newest messages in a room,
// ordered oldest to newest. Sender display names are resolved via the users
// table; messages whose sender no longer exists get "Unknown".
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	query := `
		SELECT m.id, m.room, m.sender_id, COALESCE(u.username, 'Unknown'), m.content, m.created_at
		FROM (
			SELECT id, room, sender_id, content, created_at
			FROM messages
			WHERE room = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) m
		LEFT JOIN users u ON u.id = m.sender_id
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.Room,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
