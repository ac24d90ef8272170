package core

import (
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

type targetKind int

const (
	targetSingleUser targetKind = iota
	targetRoom
	targetAllExcept
)

// Target selects the recipients of a delivery.
type Target struct {
	kind   targetKind
	userID int64
	room   RoomID
}

// SingleUser targets the user's live connection, if any.
func SingleUser(userID int64) Target {
	return Target{kind: targetSingleUser, userID: userID}
}

// Room targets every connection currently joined to the room.
func Room(room RoomID) Target {
	return Target{kind: targetRoom, room: room}
}

// AllExcept targets every registered connection except the user's own.
func AllExcept(userID int64) Target {
	return Target{kind: targetAllExcept, userID: userID}
}

// DeliveryRouter pushes events to their live recipients. Delivery is
// at-most-once and best-effort: offline recipients never see the event.
// Events pushed to one connection by a single caller keep their order,
// since every push lands on the connection's FIFO sink synchronously.
type DeliveryRouter struct {
	registry *ConnectionRegistry
	rooms    *RoomMembership
	log      zerolog.Logger
}

// NewDeliveryRouter builds a router over the registry and membership table.
func NewDeliveryRouter(registry *ConnectionRegistry, rooms *RoomMembership, logger *zerolog.Logger) *DeliveryRouter {
	return &DeliveryRouter{
		registry: registry,
		rooms:    rooms,
		log:      componentLogger(logger, "delivery_router"),
	}
}

// Deliver pushes ev to the resolved target and returns how many connections
// accepted it. A failed push is logged and never stops the rest of a fan-out.
func (r *DeliveryRouter) Deliver(target Target, ev Event) int {
	switch target.kind {
	case targetSingleUser:
		conn, ok := r.registry.Lookup(target.userID)
		if !ok {
			r.log.Debug().Int64("user_id", target.userID).Stringer("event", ev.Kind()).Msg("recipient offline, event dropped")
			return 0
		}
		if r.push(conn, ev) {
			return 1
		}
		return 0
	case targetRoom:
		delivered := 0
		for _, connID := range r.rooms.MembersOf(target.room) {
			conn, ok := r.registry.Connection(connID)
			if !ok {
				continue
			}
			if r.push(conn, ev) {
				delivered++
			}
		}
		r.log.Debug().Str("room", string(target.room)).Stringer("event", ev.Kind()).Int("delivered", delivered).Msg("room fan-out")
		return delivered
	case targetAllExcept:
		delivered := 0
		for _, conn := range r.registry.Connections() {
			if conn.UserID == target.userID {
				continue
			}
			if r.push(conn, ev) {
				delivered++
			}
		}
		return delivered
	default:
		r.log.Error().Int("target_kind", int(target.kind)).Msg("unknown delivery target")
		return 0
	}
}

func (r *DeliveryRouter) push(conn *Connection, ev Event) bool {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = conn.Push(ev)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		r.log.Error().
			Err(recovered.AsError()).
			Str("conn_id", conn.ID).
			Int64("user_id", conn.UserID).
			Stringer("event", ev.Kind()).
			Msg("push panicked")
		return false
	}
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("conn_id", conn.ID).
			Int64("user_id", conn.UserID).
			Stringer("event", ev.Kind()).
			Msg("push failed")
		return false
	}
	return true
}

func componentLogger(logger *zerolog.Logger, component string) zerolog.Logger {
	if logger == nil {
		return zerolog.Nop()
	}
	return logger.With().Str("component", component).Logger()
}
