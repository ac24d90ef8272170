package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/store"
	"github.com/vovakirdan/connectus-realtime/internal/utils"
)

// Common errors for call operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrCallNotFound    = errors.New("call not found")
	ErrCallEnded       = errors.New("call has ended")
	ErrNotParticipant  = errors.New("not a participant in this call")
	ErrNotReceiver     = errors.New("only the receiver can do this")
	ErrNotRinging      = errors.New("call is not ringing")
	ErrCannotCallSelf  = errors.New("cannot call yourself")
	ErrInvalidCallType = errors.New("invalid call type")
)

// Relay pushes call events to live connections. It is satisfied by
// core.CallSignalingRelay; every method returns how many connections it reached.
type Relay interface {
	Invite(ctx context.Context, callID string, callerID, targetID int64, callType string) int
	Accept(accepterID, callerID int64) int
	Reject(rejecterID, callerID int64) int
	End(otherUserID int64) int
}

// Service keeps the call log in step with the realtime signaling.
type Service struct {
	logs  store.CallLogStore
	users store.UserStore
	relay Relay
	now   func() time.Time
	log   zerolog.Logger
}

// New creates a new call service.
func New(logs store.CallLogStore, users store.UserStore, relay Relay, logger *zerolog.Logger) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "call_service").Logger()
	}
	return &Service{
		logs:  logs,
		users: users,
		relay: relay,
		now:   func() time.Time { return time.Now().UTC() },
		log:   l,
	}
}

// Initiate records a ringing call and rings the receiver. A receiver who is
// not reachable gets the call logged as missed.
func (s *Service) Initiate(ctx context.Context, callerID, receiverID int64, callType store.CallType) (*store.CallLog, error) {
	if callerID == receiverID {
		return nil, ErrCannotCallSelf
	}
	switch callType {
	case "":
		callType = store.CallTypeVoice
	case store.CallTypeVoice, store.CallTypeVideo:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCallType, callType)
	}

	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get receiver: %w", err)
	}

	call := &store.CallLog{
		ID:         utils.NewCallID(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Type:       callType,
		Status:     store.CallStatusRinging,
		StartedAt:  s.now(),
	}
	if err := s.logs.CreateCallLog(ctx, call); err != nil {
		return nil, fmt.Errorf("save call: %w", err)
	}

	if s.relay.Invite(ctx, call.ID, callerID, receiverID, string(callType)) == 0 {
		call.Status = store.CallStatusMissed
		if err := s.logs.UpdateCallLog(ctx, call); err != nil {
			return nil, fmt.Errorf("mark missed: %w", err)
		}
		s.log.Info().Str("call_id", call.ID).Int64("receiver_id", receiverID).Msg("receiver unreachable, call missed")
	}

	return call, nil
}

// Get returns a call log by id.
func (s *Service) Get(ctx context.Context, callID string) (*store.CallLog, error) {
	call, err := s.logs.GetCallLog(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

// Answer marks a ringing call as answered and tells the caller.
func (s *Service) Answer(ctx context.Context, callID string, byUserID int64) (*store.CallLog, error) {
	call, err := s.ringingForReceiver(ctx, callID, byUserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	call.Status = store.CallStatusAnswered
	call.AnsweredAt = &now
	if err := s.logs.UpdateCallLog(ctx, call); err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}

	s.relay.Accept(byUserID, call.CallerID)
	return call, nil
}

// Reject marks a ringing call as rejected and tells the caller.
func (s *Service) Reject(ctx context.Context, callID string, byUserID int64) (*store.CallLog, error) {
	call, err := s.ringingForReceiver(ctx, callID, byUserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	call.Status = store.CallStatusRejected
	call.EndedAt = &now
	if err := s.logs.UpdateCallLog(ctx, call); err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}

	s.relay.Reject(byUserID, call.CallerID)
	return call, nil
}

// End closes the call for either participant and tells the other party.
// Duration is counted from the moment the call was answered.
func (s *Service) End(ctx context.Context, callID string, byUserID int64) (*store.CallLog, error) {
	call, err := s.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if byUserID != call.CallerID && byUserID != call.ReceiverID {
		return nil, ErrNotParticipant
	}
	if call.Status.Terminal() {
		return nil, ErrCallEnded
	}

	now := s.now()
	call.Status = store.CallStatusEnded
	call.EndedAt = &now
	if call.AnsweredAt != nil {
		seconds := int64(now.Sub(*call.AnsweredAt) / time.Second)
		call.DurationSeconds = &seconds
	}
	if err := s.logs.UpdateCallLog(ctx, call); err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}

	other := call.ReceiverID
	if byUserID == call.ReceiverID {
		other = call.CallerID
	}
	s.relay.End(other)
	return call, nil
}

func (s *Service) ringingForReceiver(ctx context.Context, callID string, userID int64) (*store.CallLog, error) {
	call, err := s.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != userID {
		if call.CallerID == userID {
			return nil, ErrNotReceiver
		}
		return nil, ErrNotParticipant
	}
	if call.Status.Terminal() {
		return nil, ErrCallEnded
	}
	if call.Status != store.CallStatusRinging {
		return nil, ErrNotRinging
	}
	return call, nil
}
