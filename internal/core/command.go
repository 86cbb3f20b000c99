package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandBind associates an authenticated identity with the connection.
	CommandBind CommandKind = iota
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
	// CommandSendMessage delivers a chat message to room participants.
	CommandSendMessage
	// CommandLogout drops the binding but keeps the connection open.
	CommandLogout
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Identity Identity // for CommandBind
	Room     string
	Content  string

	// Ack carries the bind outcome back to the caller: nil on success, a
	// *CoreError otherwise. Must be buffered; set for CommandBind only.
	Ack chan error
}
