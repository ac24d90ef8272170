package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// Deps carries the collaborators of a Hub. Every store may be nil; the
// steps that need it are then skipped.
type Deps struct {
	Authenticator Authenticator
	Presence      store.PresenceStore
	Users         store.UserStore
	Memberships   store.MembershipStore
	Messages      store.MessageStore
	Policy        PresencePolicy
	Logger        *zerolog.Logger
}

// Hub is the realtime core: it owns the connection registry and room
// membership and exposes the push surface the rest of the server uses.
type Hub struct {
	registry  *ConnectionRegistry
	rooms     *RoomMembership
	router    *DeliveryRouter
	presence  *PresenceTracker
	signaling *CallSignalingRelay

	memberships store.MembershipStore
	messages    store.MessageStore
	log         zerolog.Logger
}

// NewHub creates a new hub instance.
func NewHub(deps Deps) *Hub {
	registry := NewConnectionRegistry()
	rooms := NewRoomMembership()
	router := NewDeliveryRouter(registry, rooms, deps.Logger)

	return &Hub{
		registry: registry,
		rooms:    rooms,
		router:   router,
		presence: NewPresenceTracker(
			deps.Authenticator, registry, rooms, router,
			deps.Presence, deps.Memberships, deps.Policy, deps.Logger,
		),
		signaling:   NewCallSignalingRelay(registry, router, deps.Users, deps.Logger),
		memberships: deps.Memberships,
		messages:    deps.Messages,
		log:         componentLogger(deps.Logger, "hub"),
	}
}

// Run starts background work and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.presence.Run(ctx)
}

// Connect authenticates and registers a new connection.
func (h *Hub) Connect(ctx context.Context, credential string, sink Sink) (*Session, error) {
	return h.presence.OnConnect(ctx, credential, sink)
}

// Authenticate checks a credential without registering anything. Transports
// call it before committing to a connection, then Establish.
func (h *Hub) Authenticate(ctx context.Context, credential string) (int64, error) {
	return h.presence.Authenticate(ctx, credential)
}

// Establish registers a connection for a user already returned by
// Authenticate.
func (h *Hub) Establish(ctx context.Context, userID int64, sink Sink) (*Session, error) {
	return h.presence.Establish(ctx, userID, sink)
}

// Disconnect tears down a session. Safe to call more than once.
func (h *Hub) Disconnect(ctx context.Context, s *Session) {
	h.presence.OnDisconnect(ctx, s)
}

// Signaling exposes the call relay for server-initiated call events.
func (h *Hub) Signaling() *CallSignalingRelay { return h.signaling }

// IsOnline reports whether the user has a registered connection.
func (h *Hub) IsOnline(userID int64) bool { return h.registry.IsOnline(userID) }

// OnlineCount returns the number of online users.
func (h *Hub) OnlineCount() int { return h.registry.Count() }

// NotifyUser pushes ev to the user's connection.
func (h *Hub) NotifyUser(userID int64, ev Event) int {
	return h.router.Deliver(SingleUser(userID), ev)
}

// NotifyRoom pushes ev to every connection in the room.
func (h *Hub) NotifyRoom(room RoomID, ev Event) int {
	return h.router.Deliver(Room(room), ev)
}

// NotifyAllExcept pushes ev to every connection except the user's own.
func (h *Hub) NotifyAllExcept(userID int64, ev Event) int {
	return h.router.Deliver(AllExcept(userID), ev)
}

// CloseAll closes every live connection with the given reason. Each
// transport then disconnects its session as usual.
func (h *Hub) CloseAll(reason string) int {
	conns := h.registry.Connections()
	for _, conn := range conns {
		conn.Close(reason)
	}
	if len(conns) > 0 {
		h.log.Info().Int("connections", len(conns)).Str("reason", reason).Msg("closing all connections")
	}
	return len(conns)
}

// JoinRoom subscribes a connection to a room.
func (h *Hub) JoinRoom(connID string, room RoomID) bool {
	return h.rooms.Join(connID, room)
}

// LeaveRoom unsubscribes a connection from a room.
func (h *Hub) LeaveRoom(connID string, room RoomID) bool {
	return h.rooms.Leave(connID, room)
}

// JoinUserRoom subscribes the user's current connection, if any. Used when
// membership changes server-side while the user is connected. The user must
// be an active member of the group or channel.
func (h *Hub) JoinUserRoom(ctx context.Context, userID int64, room RoomID) (bool, error) {
	id, ok := room.ID()
	if !ok {
		return false, fmt.Errorf("%w: malformed room %q", ErrBadRequest, room)
	}
	if err := h.checkMembership(ctx, userID, room, id); err != nil {
		return false, err
	}
	conn, ok := h.registry.Lookup(userID)
	if !ok {
		return false, nil
	}
	return h.JoinRoom(conn.ID, room), nil
}

// LeaveUserRoom unsubscribes the user's current connection, if any.
func (h *Hub) LeaveUserRoom(userID int64, room RoomID) bool {
	conn, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	return h.LeaveRoom(conn.ID, room)
}

// Handle executes a command issued by a connected session.
func (h *Hub) Handle(ctx context.Context, s *Session, cmd *Command) error {
	if s == nil || s.State() != SessionConnected {
		return ErrConnectionClosed
	}
	if cmd == nil {
		return fmt.Errorf("%w: empty command", ErrBadRequest)
	}
	me := s.UserID()

	switch cmd.Kind {
	case CommandCallInvite:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		callType := cmd.CallType
		if callType == "" {
			callType = string(store.CallTypeVoice)
		}
		h.signaling.Invite(ctx, "", me, cmd.TargetUserID, callType)
	case CommandCallAccept:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.Accept(me, cmd.TargetUserID)
	case CommandCallReject:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.Reject(me, cmd.TargetUserID)
	case CommandCallEnd:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.End(cmd.TargetUserID)
	case CommandOffer:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.Offer(me, cmd.TargetUserID, cmd.SDP)
	case CommandAnswer:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.Answer(me, cmd.TargetUserID, cmd.SDP)
	case CommandIceCandidate:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		h.signaling.IceCandidate(me, cmd.TargetUserID, cmd.Candidate)

	case CommandTypingStart, CommandTypingStop:
		if err := requireTarget(cmd); err != nil {
			return err
		}
		var ev Event = UserTyping{UserID: me}
		if cmd.Kind == CommandTypingStop {
			ev = UserStoppedTyping{UserID: me}
		}
		h.NotifyUser(cmd.TargetUserID, ev)
	case CommandGroupTypingStart, CommandGroupTypingStop:
		room := GroupRoom(cmd.GroupID)
		if !h.rooms.IsMember(s.ID(), room) {
			return fmt.Errorf("%w: %s", ErrNotRoomMember, room)
		}
		var ev Event = UserTypingGroup{UserID: me, GroupID: cmd.GroupID}
		if cmd.Kind == CommandGroupTypingStop {
			ev = UserStoppedTypingGroup{UserID: me, GroupID: cmd.GroupID}
		}
		h.NotifyRoom(room, ev)

	case CommandMarkRead:
		return h.markRead(ctx, me, cmd.TargetUserID)

	case CommandJoinGroup:
		return h.joinChecked(ctx, s, GroupRoom(cmd.GroupID), cmd.GroupID)
	case CommandJoinChannel:
		return h.joinChecked(ctx, s, ChannelRoom(cmd.ChannelID), cmd.ChannelID)
	case CommandLeaveGroup:
		h.LeaveRoom(s.ID(), GroupRoom(cmd.GroupID))
	case CommandLeaveChannel:
		h.LeaveRoom(s.ID(), ChannelRoom(cmd.ChannelID))

	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Kind)
	}
	return nil
}

func (h *Hub) markRead(ctx context.Context, readerID, senderID int64) error {
	if senderID <= 0 {
		return fmt.Errorf("%w: sender id required", ErrBadRequest)
	}
	if h.messages != nil {
		n, err := h.messages.MarkConversationRead(ctx, readerID, senderID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		h.log.Debug().Int64("reader_id", readerID).Int64("sender_id", senderID).Int64("updated", n).Msg("conversation read")
	}
	h.NotifyUser(senderID, MessagesRead{ReaderID: readerID})
	return nil
}

func (h *Hub) joinChecked(ctx context.Context, s *Session, room RoomID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: room id required", ErrBadRequest)
	}
	if err := h.checkMembership(ctx, s.UserID(), room, id); err != nil {
		return err
	}
	h.JoinRoom(s.ID(), room)
	return nil
}

func (h *Hub) checkMembership(ctx context.Context, userID int64, room RoomID, id int64) error {
	if h.memberships == nil {
		return nil
	}
	var (
		ok  bool
		err error
	)
	if room.IsGroup() {
		ok, err = h.memberships.IsActiveGroupMember(ctx, userID, id)
	} else {
		ok, err = h.memberships.IsActiveChannelSubscriber(ctx, userID, id)
	}
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRoomMember, room)
	}
	return nil
}

func requireTarget(cmd *Command) error {
	if cmd.TargetUserID <= 0 {
		return fmt.Errorf("%w: target user id required", ErrBadRequest)
	}
	return nil
}
