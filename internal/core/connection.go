package core

import "time"

// Sink is the transport side of a live connection. The transport owns it;
// the core only pushes events into it and asks it to close.
type Sink interface {
	// Push queues an event for delivery. It must not block.
	Push(Event) error
	// Close tears the transport down. Safe to call more than once.
	Close(reason string)
}

// Connection is one live transport session bound to an authenticated user.
type Connection struct {
	ID          string
	UserID      int64
	ConnectedAt time.Time

	sink Sink
}

// NewConnection binds a sink to a user under a connection id.
func NewConnection(id string, userID int64, sink Sink, connectedAt time.Time) *Connection {
	return &Connection{
		ID:          id,
		UserID:      userID,
		ConnectedAt: connectedAt,
		sink:        sink,
	}
}

// Push forwards an event to the underlying transport.
func (c *Connection) Push(ev Event) error {
	if c.sink == nil {
		return ErrConnectionClosed
	}
	return c.sink.Push(ev)
}

// Close asks the transport to shut the session down.
func (c *Connection) Close(reason string) {
	if c.sink != nil {
		c.sink.Close(reason)
	}
}
