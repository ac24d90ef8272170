package core

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

func newSignalingHub() *Hub {
	return NewHub(Deps{
		Authenticator: tokenAuth,
		Users: fakeUserStore{
			1: {ID: 1, Username: "alice", FullName: "Alice", ProfilePictureURL: "a.png"},
			2: {ID: 2, Username: "bob"},
		},
		Policy: syncPolicy(),
	})
}

func TestInviteCarriesCallerProfile(t *testing.T) {
	hub := newSignalingHub()
	_, bob := connect(t, hub, 2)

	n := hub.Signaling().Invite(context.Background(), "call-1", 1, 2, "video")
	require.Equal(t, 1, n)

	ev := mustEvent[IncomingCall](t, bob)
	assert.Equal(t, "call-1", ev.CallID)
	assert.Equal(t, int64(1), ev.CallerID)
	assert.Equal(t, "Alice", ev.CallerName)
	assert.Equal(t, "a.png", ev.CallerPic)
	assert.Equal(t, "video", ev.CallType)
}

func TestInviteFallsBackToUsername(t *testing.T) {
	hub := newSignalingHub()
	_, alice := connect(t, hub, 1)

	hub.Signaling().Invite(context.Background(), "", 2, 1, "voice")
	assert.Equal(t, "bob", mustEvent[IncomingCall](t, alice).CallerName)
}

func TestInviteOfflineTargetSendsNothing(t *testing.T) {
	hub := newSignalingHub()
	_, alice := connect(t, hub, 1)

	assert.Zero(t, hub.Signaling().Invite(context.Background(), "", 1, 2, "voice"))
	assert.Empty(t, alice.Events(), "the caller gets no failure event")
}

func TestInviteUnknownCallerIsDropped(t *testing.T) {
	hub := newSignalingHub()
	_, bob := connect(t, hub, 2)

	assert.Zero(t, hub.Signaling().Invite(context.Background(), "", 77, 2, "voice"))
	assert.Empty(t, bob.Events())
}

func TestNegotiationPayloadsAreRelayedVerbatim(t *testing.T) {
	hub := newSignalingHub()
	_, alice := connect(t, hub, 1)
	_, bob := connect(t, hub, 2)
	relay := hub.Signaling()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	mid := "0"
	idx := uint16(0)
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	assert.Equal(t, 1, relay.Offer(1, 2, offer))
	assert.Equal(t, 1, relay.Answer(2, 1, answer))
	assert.Equal(t, 1, relay.IceCandidate(1, 2, candidate))

	gotOffer := mustEvent[ReceiveOffer](t, bob)
	assert.Equal(t, int64(1), gotOffer.FromID)
	assert.Equal(t, offer, gotOffer.SDP)
	assert.Equal(t, answer, mustEvent[ReceiveAnswer](t, alice).SDP)
	assert.Equal(t, candidate, mustEvent[ReceiveIceCandidate](t, bob).Candidate)
}

func TestCallControlEvents(t *testing.T) {
	hub := newSignalingHub()
	_, alice := connect(t, hub, 1)
	_, bob := connect(t, hub, 2)
	relay := hub.Signaling()

	relay.Accept(2, 1)
	relay.Reject(2, 1)
	relay.End(2)

	assert.Equal(t, int64(2), mustEvent[CallAccepted](t, alice).AccepterID)
	assert.Equal(t, int64(2), mustEvent[CallRejected](t, alice).RejecterID)
	mustEvent[CallEnded](t, bob)

	assert.Zero(t, relay.End(404))
}

func TestCallTypesMatchStore(t *testing.T) {
	assert.Equal(t, "voice", string(store.CallTypeVoice))
	assert.Equal(t, "video", string(store.CallTypeVideo))
}
