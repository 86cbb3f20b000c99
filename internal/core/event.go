package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies room members about a persisted chat message.
	EventRoomMessage EventKind = iota
	// EventHistory delivers the one-time historical snapshot to a joining client.
	EventHistory
	// EventPresence delivers a room's current member list to its members.
	EventPresence
	// EventAuthRequired tells a client it must authenticate before joining.
	// Terminal: the transport closes the connection after delivering it.
	EventAuthRequired
	// EventUnauthorized tells a client a join was denied. The connection stays open.
	EventUnauthorized
	// EventMessageError reports a per-operation failure to the affected client only.
	EventMessageError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	Message  Message
	Messages []Message  // for EventHistory
	Users    []Identity // for EventPresence
	Reason   string     // human-readable, for the error kinds
}
