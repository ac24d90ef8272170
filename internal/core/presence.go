package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/connectus-realtime/internal/store"
	"github.com/vovakirdan/connectus-realtime/internal/utils"
)

// PersistMode selects how presence writes reach the durable store.
type PersistMode string

const (
	// PersistSync writes inline during connect/disconnect.
	PersistSync PersistMode = "sync"
	// PersistAsync queues writes for the background worker started by Run.
	PersistAsync PersistMode = "async"
)

// PresencePolicy configures presence persistence and supersede handling.
// Persistence failures never reverse an in-memory transition under any policy.
type PresencePolicy struct {
	Mode            PersistMode
	Retries         int
	Timeout         time.Duration
	QueueSize       int
	CloseSuperseded bool
}

// DefaultPresencePolicy returns the policy used when none is configured.
func DefaultPresencePolicy() PresencePolicy {
	return PresencePolicy{
		Mode:            PersistAsync,
		Retries:         2,
		Timeout:         3 * time.Second,
		QueueSize:       1024,
		CloseSuperseded: true,
	}
}

// SessionState is the lifecycle state of a connection session.
type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is the lifecycle handle the transport holds between OnConnect
// and OnDisconnect.
type Session struct {
	conn  *Connection
	state atomic.Int32
}

// Connection returns the registered connection handle.
func (s *Session) Connection() *Connection { return s.conn }

// UserID returns the authenticated user of the session.
func (s *Session) UserID() int64 { return s.conn.UserID }

// ID returns the connection id of the session.
func (s *Session) ID() string { return s.conn.ID }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

type presenceWrite struct {
	userID int64
	online bool
	at     time.Time
}

// PresenceTracker drives the connect/disconnect lifecycle: registry and room
// bookkeeping, presence persistence and online/offline broadcasts.
type PresenceTracker struct {
	authn       Authenticator
	registry    *ConnectionRegistry
	rooms       *RoomMembership
	router      *DeliveryRouter
	presence    store.PresenceStore
	memberships store.MembershipStore
	policy      PresencePolicy
	writes      chan presenceWrite
	now         func() time.Time
	newID       func() string
	log         zerolog.Logger
}

// NewPresenceTracker wires the tracker. presence and memberships may be nil,
// in which case the corresponding steps are skipped.
func NewPresenceTracker(
	authn Authenticator,
	registry *ConnectionRegistry,
	rooms *RoomMembership,
	router *DeliveryRouter,
	presence store.PresenceStore,
	memberships store.MembershipStore,
	policy PresencePolicy,
	logger *zerolog.Logger,
) *PresenceTracker {
	if policy.Mode == "" {
		policy.Mode = PersistSync
	}
	if policy.QueueSize <= 0 {
		policy.QueueSize = DefaultPresencePolicy().QueueSize
	}
	return &PresenceTracker{
		authn:       authn,
		registry:    registry,
		rooms:       rooms,
		router:      router,
		presence:    presence,
		memberships: memberships,
		policy:      policy,
		writes:      make(chan presenceWrite, policy.QueueSize),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       utils.NewConnectionID,
		log:         componentLogger(logger, "presence_tracker"),
	}
}

// Authenticate resolves credential to a user id. Errors wrap
// ErrUnauthenticated. It touches no tracker state.
func (p *PresenceTracker) Authenticate(ctx context.Context, credential string) (int64, error) {
	if p.authn == nil {
		return 0, fmt.Errorf("%w: no authenticator configured", ErrUnauthenticated)
	}
	userID, err := p.authn.Authenticate(ctx, credential)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if userID <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %d", ErrUnauthenticated, userID)
	}
	return userID, nil
}

// OnConnect authenticates the credential and brings the connection online.
// On rejection it returns an error wrapping ErrUnauthenticated and has no
// side effects.
func (p *PresenceTracker) OnConnect(ctx context.Context, credential string, sink Sink) (*Session, error) {
	userID, err := p.Authenticate(ctx, credential)
	if err != nil {
		return nil, err
	}
	return p.Establish(ctx, userID, sink)
}

// Establish brings an already authenticated user online on sink,
// superseding any previous connection of the same user.
func (p *PresenceTracker) Establish(ctx context.Context, userID int64, sink Sink) (*Session, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id %d", ErrUnauthenticated, userID)
	}
	s := &Session{}
	s.transition(SessionDisconnected, SessionConnecting)

	now := p.now()
	conn := NewConnection(p.newID(), userID, sink, now)
	s.conn = conn

	superseded := p.registry.Register(conn)
	if superseded != nil {
		p.retire(superseded)
	}

	p.persist(ctx, userID, true, now)

	// A supersede is not a presence transition: the user never went offline.
	if superseded == nil {
		p.router.Deliver(AllExcept(userID), UserOnline{UserID: userID})
	}

	p.joinMemberRooms(ctx, conn)

	s.transition(SessionConnecting, SessionConnected)
	p.log.Info().Int64("user_id", userID).Str("conn_id", conn.ID).Bool("superseded", superseded != nil).Msg("connected")
	return s, nil
}

// OnDisconnect reverses OnConnect. It runs the same way for graceful and
// abrupt disconnects and is a no-op for sessions that are not connected.
func (p *PresenceTracker) OnDisconnect(ctx context.Context, s *Session) {
	if s == nil || !s.transition(SessionConnected, SessionDisconnected) {
		return
	}
	conn := s.conn

	wentOffline := p.registry.Release(conn)
	p.rooms.LeaveAll(conn.ID)

	if !wentOffline {
		p.log.Debug().Int64("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("superseded connection closed")
		return
	}

	now := p.now()
	p.persist(ctx, conn.UserID, false, now)
	p.router.Deliver(AllExcept(conn.UserID), UserOffline{UserID: conn.UserID, LastSeen: now})

	p.log.Info().Int64("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("disconnected")
}

// Run drains the async persistence queue until ctx is done, then flushes
// whatever is still queued. Writes are bounded by the policy timeout rather
// than by ctx so shutdown does not abort them.
func (p *PresenceTracker) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case w := <-p.writes:
			p.write(writeCtx, w)
		case <-ctx.Done():
			for {
				select {
				case w := <-p.writes:
					p.write(writeCtx, w)
				default:
					return
				}
			}
		}
	}
}

func (p *PresenceTracker) retire(conn *Connection) {
	p.rooms.LeaveAll(conn.ID)
	if p.policy.CloseSuperseded {
		conn.Close("superseded")
	}
	p.log.Info().Int64("user_id", conn.UserID).Str("conn_id", conn.ID).Msg("connection superseded")
}

func (p *PresenceTracker) joinMemberRooms(ctx context.Context, conn *Connection) {
	if p.memberships == nil {
		return
	}

	var (
		g        errgroup.Group
		groups   []int64
		channels []int64
	)
	g.Go(func() error {
		ids, err := p.memberships.ListActiveGroupIDs(ctx, conn.UserID)
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}
		groups = ids
		return nil
	})
	g.Go(func() error {
		ids, err := p.memberships.ListActiveChannelIDs(ctx, conn.UserID)
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		channels = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		p.log.Error().Err(err).Int64("user_id", conn.UserID).Msg("failed to load room memberships")
	}

	for _, id := range groups {
		p.rooms.Join(conn.ID, GroupRoom(id))
	}
	for _, id := range channels {
		p.rooms.Join(conn.ID, ChannelRoom(id))
	}

	// Superseded while loading: the newer connection owns the rooms now.
	if _, ok := p.registry.Connection(conn.ID); !ok {
		p.rooms.LeaveAll(conn.ID)
	}
}

func (p *PresenceTracker) persist(ctx context.Context, userID int64, online bool, at time.Time) {
	if p.presence == nil {
		return
	}
	w := presenceWrite{userID: userID, online: online, at: at}

	if p.policy.Mode == PersistAsync {
		select {
		case p.writes <- w:
		default:
			p.log.Error().Int64("user_id", userID).Bool("online", online).Msg("presence queue full, write dropped")
		}
		return
	}
	p.write(context.WithoutCancel(ctx), w)
}

func (p *PresenceTracker) write(ctx context.Context, w presenceWrite) {
	var err error
	for attempt := 0; attempt <= p.policy.Retries; attempt++ {
		err = p.writeOnce(ctx, w)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
	}
	p.log.Error().Err(err).Int64("user_id", w.userID).Bool("online", w.online).Msg("failed to persist presence")
}

func (p *PresenceTracker) writeOnce(ctx context.Context, w presenceWrite) error {
	if p.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.policy.Timeout)
		defer cancel()
	}
	return p.presence.SetOnline(ctx, w.userID, w.online, w.at)
}
