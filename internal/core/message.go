package core

import "time"

// Message is the domain model for a chat message.
// Sender carries the display name the message is delivered with: the live
// binding's username at send time, or the store-resolved name for history.
type Message struct {
	ID        string
	Room      string
	Sender    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}
