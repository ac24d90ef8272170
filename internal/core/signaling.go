package core

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// CallSignalingRelay forwards call control and WebRTC negotiation payloads
// between two users. It keeps no call state; each method returns the number
// of connections the event reached.
type CallSignalingRelay struct {
	registry *ConnectionRegistry
	router   *DeliveryRouter
	users    store.UserStore
	log      zerolog.Logger
}

// NewCallSignalingRelay creates a relay. users resolves the caller profile
// attached to invitations and may be nil.
func NewCallSignalingRelay(registry *ConnectionRegistry, router *DeliveryRouter, users store.UserStore, logger *zerolog.Logger) *CallSignalingRelay {
	return &CallSignalingRelay{
		registry: registry,
		router:   router,
		users:    users,
		log:      componentLogger(logger, "call_signaling"),
	}
}

// Invite rings targetID. Nothing is sent when the target is offline or the
// caller profile cannot be resolved.
func (r *CallSignalingRelay) Invite(ctx context.Context, callID string, callerID, targetID int64, callType string) int {
	if !r.registry.IsOnline(targetID) {
		r.log.Debug().Int64("caller_id", callerID).Int64("target_id", targetID).Msg("invite target offline")
		return 0
	}

	ev := IncomingCall{CallID: callID, CallerID: callerID, CallType: callType}
	if r.users != nil {
		caller, err := r.users.GetUserByID(ctx, callerID)
		if err != nil {
			r.log.Warn().Err(err).Int64("caller_id", callerID).Msg("caller profile unavailable, invite dropped")
			return 0
		}
		ev.CallerName = caller.DisplayName()
		ev.CallerPic = caller.ProfilePictureURL
	}

	return r.router.Deliver(SingleUser(targetID), ev)
}

// Accept tells the caller that accepterID picked up.
func (r *CallSignalingRelay) Accept(accepterID, callerID int64) int {
	return r.router.Deliver(SingleUser(callerID), CallAccepted{AccepterID: accepterID})
}

// Reject tells the caller that rejecterID declined.
func (r *CallSignalingRelay) Reject(rejecterID, callerID int64) int {
	return r.router.Deliver(SingleUser(callerID), CallRejected{RejecterID: rejecterID})
}

// End tells the other party the call is over.
func (r *CallSignalingRelay) End(otherUserID int64) int {
	return r.router.Deliver(SingleUser(otherUserID), CallEnded{})
}

// Offer relays an SDP offer unmodified.
func (r *CallSignalingRelay) Offer(fromID, targetID int64, sdp webrtc.SessionDescription) int {
	return r.router.Deliver(SingleUser(targetID), ReceiveOffer{FromID: fromID, SDP: sdp})
}

// Answer relays an SDP answer unmodified.
func (r *CallSignalingRelay) Answer(fromID, targetID int64, sdp webrtc.SessionDescription) int {
	return r.router.Deliver(SingleUser(targetID), ReceiveAnswer{FromID: fromID, SDP: sdp})
}

// IceCandidate relays an ICE candidate unmodified.
func (r *CallSignalingRelay) IceCandidate(fromID, targetID int64, candidate webrtc.ICECandidateInit) int {
	return r.router.Deliver(SingleUser(targetID), ReceiveIceCandidate{FromID: fromID, Candidate: candidate})
}
