package core

import "github.com/puzpuzpuz/xsync/v3"

// ConnectionRegistry maps each connected user to their live connection and
// indexes the same handles by connection id. It holds non-owning references:
// the transport owns the sessions.
//
// All operations are safe for concurrent use; each key is updated
// all-or-nothing.
type ConnectionRegistry struct {
	byUser *xsync.MapOf[int64, *Connection]
	byConn *xsync.MapOf[string, *Connection]
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byUser: xsync.NewMapOf[int64, *Connection](),
		byConn: xsync.NewMapOf[string, *Connection](),
	}
}

// Register records conn as its user's live connection, overwriting any
// previous mapping. The superseded connection, if any, is returned so the
// caller can decide what to do with it; the registry does not close it.
func (r *ConnectionRegistry) Register(conn *Connection) (superseded *Connection) {
	r.byConn.Store(conn.ID, conn)
	prev, loaded := r.byUser.LoadAndStore(conn.UserID, conn)
	if !loaded || prev.ID == conn.ID {
		return nil
	}
	r.byConn.Delete(prev.ID)
	return prev
}

// Unregister drops the user's mapping, whatever connection it points at.
// Unknown users are a no-op.
func (r *ConnectionRegistry) Unregister(userID int64) {
	prev, loaded := r.byUser.LoadAndDelete(userID)
	if loaded {
		r.byConn.Delete(prev.ID)
	}
}

// Release removes conn only if it is still the user's current connection.
// It reports whether the user mapping was removed, i.e. whether the user
// went offline. A connection that was already superseded releases nothing.
func (r *ConnectionRegistry) Release(conn *Connection) bool {
	released := false
	r.byUser.Compute(conn.UserID, func(cur *Connection, loaded bool) (*Connection, bool) {
		if loaded && cur.ID == conn.ID {
			released = true
			return nil, true
		}
		return cur, !loaded
	})
	r.byConn.Compute(conn.ID, func(cur *Connection, loaded bool) (*Connection, bool) {
		if loaded && cur == conn {
			return nil, true
		}
		return cur, !loaded
	})
	return released
}

// Lookup returns the user's live connection. A miss means the user is
// offline, not an error.
func (r *ConnectionRegistry) Lookup(userID int64) (*Connection, bool) {
	return r.byUser.Load(userID)
}

// IsOnline reports whether the user has a live connection.
func (r *ConnectionRegistry) IsOnline(userID int64) bool {
	_, ok := r.byUser.Load(userID)
	return ok
}

// Connection resolves a connection id to its handle.
func (r *ConnectionRegistry) Connection(connID string) (*Connection, bool) {
	return r.byConn.Load(connID)
}

// Connections returns a snapshot of every registered connection.
func (r *ConnectionRegistry) Connections() []*Connection {
	out := make([]*Connection, 0, r.byUser.Size())
	r.byUser.Range(func(_ int64, conn *Connection) bool {
		out = append(out, conn)
		return true
	})
	return out
}

// Count returns the number of online users.
func (r *ConnectionRegistry) Count() int {
	return r.byUser.Size()
}
