package core

// Client is a chat connection as seen by the core layer.
// ID is the connection identifier, not the user: identity is attached
// later through a bind command and lives in the presence registry.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 16),
	}
}
