package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubCallScenario(t *testing.T) {
	hub := newSignalingHub()
	ctx := context.Background()

	alice, aliceSink := connect(t, hub, 1)
	bob, bobSink := connect(t, hub, 2)

	// Alice saw Bob come online.
	assert.Equal(t, UserOnline{UserID: 2}, mustEvent[UserOnline](t, aliceSink))

	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandCallInvite, TargetUserID: 2, CallType: "video"}))
	invite := mustEvent[IncomingCall](t, bobSink)
	assert.Equal(t, "Alice", invite.CallerName)
	assert.Equal(t, "video", invite.CallType)

	require.NoError(t, hub.Handle(ctx, bob, &Command{Kind: CommandCallAccept, TargetUserID: 1}))
	assert.Equal(t, int64(2), mustEvent[CallAccepted](t, aliceSink).AccepterID)

	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandOffer, TargetUserID: 2, SDP: sdp}))
	assert.Equal(t, sdp, mustEvent[ReceiveOffer](t, bobSink).SDP)

	require.NoError(t, hub.Handle(ctx, bob, &Command{Kind: CommandAnswer, TargetUserID: 1, SDP: sdp}))
	mustEvent[ReceiveAnswer](t, aliceSink)

	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandIceCandidate, TargetUserID: 2, Candidate: webrtc.ICECandidateInit{Candidate: "c"}}))
	mustEvent[ReceiveIceCandidate](t, bobSink)

	require.NoError(t, hub.Handle(ctx, bob, &Command{Kind: CommandCallEnd, TargetUserID: 1}))
	mustEvent[CallEnded](t, aliceSink)

	hub.Disconnect(ctx, bob)
	offline := mustEvent[UserOffline](t, aliceSink)
	assert.Equal(t, int64(2), offline.UserID)
}

func TestHubInviteDefaultsToVoice(t *testing.T) {
	hub := newSignalingHub()
	alice, _ := connect(t, hub, 1)
	_, bobSink := connect(t, hub, 2)

	require.NoError(t, hub.Handle(context.Background(), alice, &Command{Kind: CommandCallInvite, TargetUserID: 2}))
	assert.Equal(t, "voice", mustEvent[IncomingCall](t, bobSink).CallType)
}

func TestHubTyping(t *testing.T) {
	memberships := &fakeMembershipStore{groups: map[int64][]int64{1: {9}, 2: {9}}}
	hub := NewHub(Deps{Authenticator: tokenAuth, Memberships: memberships, Policy: syncPolicy()})
	ctx := context.Background()

	alice, aliceSink := connect(t, hub, 1)
	_, bobSink := connect(t, hub, 2)
	carol, _ := connect(t, hub, 3)

	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandTypingStart, TargetUserID: 2}))
	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandTypingStop, TargetUserID: 2}))
	assert.Equal(t, int64(1), mustEvent[UserTyping](t, bobSink).UserID)
	assert.Equal(t, int64(1), mustEvent[UserStoppedTyping](t, bobSink).UserID)

	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandGroupTypingStart, GroupID: 9}))
	assert.Equal(t, UserTypingGroup{UserID: 1, GroupID: 9}, mustEvent[UserTypingGroup](t, bobSink))
	assert.Equal(t, 1, countEvents[UserTypingGroup](aliceSink), "group typing reaches the sender too")

	err := hub.Handle(ctx, carol, &Command{Kind: CommandGroupTypingStop, GroupID: 9})
	assert.ErrorIs(t, err, ErrNotRoomMember)
	assert.Zero(t, countEvents[UserStoppedTypingGroup](bobSink))
}

func TestHubMarkRead(t *testing.T) {
	messages := &fakeMessageStore{}
	hub := NewHub(Deps{Authenticator: tokenAuth, Messages: messages, Policy: syncPolicy()})
	ctx := context.Background()

	_, senderSink := connect(t, hub, 1)
	reader, _ := connect(t, hub, 2)

	require.NoError(t, hub.Handle(ctx, reader, &Command{Kind: CommandMarkRead, TargetUserID: 1}))
	assert.Equal(t, []readCall{{ReaderID: 2, SenderID: 1}}, messages.reads)
	assert.Equal(t, int64(2), mustEvent[MessagesRead](t, senderSink).ReaderID)

	messages.err = errors.New("disk full")
	senderSink.Reset()
	err := hub.Handle(ctx, reader, &Command{Kind: CommandMarkRead, TargetUserID: 1})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInternal, ToCoreError(err).Code)
	assert.Empty(t, senderSink.Events(), "no receipt when persistence fails")
}

func TestHubJoinRequiresMembership(t *testing.T) {
	memberships := &fakeMembershipStore{
		groups:   map[int64][]int64{},
		channels: map[int64][]int64{},
	}
	hub := NewHub(Deps{Authenticator: tokenAuth, Memberships: memberships, Policy: syncPolicy()})
	ctx := context.Background()
	alice, aliceSink := connect(t, hub, 1)

	err := hub.Handle(ctx, alice, &Command{Kind: CommandJoinGroup, GroupID: 4})
	assert.ErrorIs(t, err, ErrNotRoomMember)
	assert.Equal(t, ErrCodeNotRoomMember, ToCoreError(err).Code)

	memberships.groups[1] = []int64{4}
	memberships.channels[1] = []int64{8}
	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandJoinGroup, GroupID: 4}))
	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandJoinChannel, ChannelID: 8}))

	assert.Equal(t, 1, hub.NotifyRoom(GroupRoom(4), MessageDeleted{MessageID: 1}))
	assert.Equal(t, 1, hub.NotifyRoom(ChannelRoom(8), MessageDeleted{MessageID: 2}))
	assert.Len(t, aliceSink.Events(), 2)

	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandLeaveGroup, GroupID: 4}))
	require.NoError(t, hub.Handle(ctx, alice, &Command{Kind: CommandLeaveChannel, ChannelID: 8}))
	assert.Zero(t, hub.NotifyRoom(GroupRoom(4), MessageDeleted{MessageID: 3}))

	err = hub.Handle(ctx, alice, &Command{Kind: CommandJoinGroup})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestHubRejectsBadCommands(t *testing.T) {
	hub := newSignalingHub()
	ctx := context.Background()
	alice, _ := connect(t, hub, 1)

	assert.ErrorIs(t, hub.Handle(ctx, alice, &Command{Kind: CommandKind(999)}), ErrUnknownCommand)
	assert.Equal(t, ErrCodeUnknownCommand, ToCoreError(hub.Handle(ctx, alice, &Command{Kind: CommandKind(999)})).Code)
	assert.ErrorIs(t, hub.Handle(ctx, alice, &Command{Kind: CommandOffer}), ErrBadRequest)
	assert.ErrorIs(t, hub.Handle(ctx, alice, nil), ErrBadRequest)

	hub.Disconnect(ctx, alice)
	assert.ErrorIs(t, hub.Handle(ctx, alice, &Command{Kind: CommandCallEnd, TargetUserID: 2}), ErrConnectionClosed)
}

func TestHubServerSideRoomChanges(t *testing.T) {
	memberships := &fakeMembershipStore{groups: map[int64][]int64{}, channels: map[int64][]int64{}}
	hub := NewHub(Deps{Authenticator: tokenAuth, Memberships: memberships, Policy: syncPolicy()})
	ctx := context.Background()
	_, aliceSink := connect(t, hub, 1)

	// Membership is created after connect, then announced by the hook.
	memberships.groups[1] = []int64{3}
	joined, err := hub.JoinUserRoom(ctx, 1, GroupRoom(3))
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = hub.JoinUserRoom(ctx, 42, GroupRoom(3))
	assert.ErrorIs(t, err, ErrNotRoomMember)
	assert.False(t, joined)

	memberships.groups[42] = []int64{3}
	joined, err = hub.JoinUserRoom(ctx, 42, GroupRoom(3))
	require.NoError(t, err)
	assert.False(t, joined, "offline users have no connection to join")

	_, err = hub.JoinUserRoom(ctx, 1, RoomID("lobby"))
	assert.ErrorIs(t, err, ErrBadRequest)

	assert.Equal(t, 1, hub.NotifyRoom(GroupRoom(3), MessageDeleted{MessageID: 1}))

	assert.True(t, hub.LeaveUserRoom(1, GroupRoom(3)))
	assert.False(t, hub.LeaveUserRoom(42, GroupRoom(3)))
	assert.Zero(t, hub.NotifyRoom(GroupRoom(3), MessageDeleted{MessageID: 2}))
	assert.Len(t, aliceSink.Events(), 1)
}

func TestHubJoinUserRoomRejectsNonSubscriber(t *testing.T) {
	memberships := &fakeMembershipStore{groups: map[int64][]int64{}, channels: map[int64][]int64{2: {7}}}
	hub := NewHub(Deps{Authenticator: tokenAuth, Memberships: memberships, Policy: syncPolicy()})
	ctx := context.Background()
	_, carolSink := connect(t, hub, 3)
	_, bobSink := connect(t, hub, 2)
	carolSink.Reset()

	_, err := hub.JoinUserRoom(ctx, 3, ChannelRoom(7))
	require.ErrorIs(t, err, ErrNotRoomMember)

	assert.Equal(t, 1, hub.NotifyRoom(ChannelRoom(7), ReceiveMessage{}))
	assert.Empty(t, carolSink.Events())
	assert.Len(t, bobSink.Events(), 1)
}

func TestHubLeaveRoomByConnection(t *testing.T) {
	hub := newSignalingHub()
	alice, aliceSink := connect(t, hub, 1)

	assert.True(t, hub.JoinRoom(alice.ID(), ChannelRoom(5)))
	assert.False(t, hub.JoinRoom(alice.ID(), ChannelRoom(5)), "second join is a no-op")
	assert.Equal(t, 1, hub.NotifyRoom(ChannelRoom(5), MessageDeleted{MessageID: 1}))

	assert.True(t, hub.LeaveRoom(alice.ID(), ChannelRoom(5)))
	assert.False(t, hub.LeaveRoom(alice.ID(), ChannelRoom(5)))
	assert.False(t, hub.LeaveRoom("unknown-conn", ChannelRoom(5)))
	assert.Zero(t, hub.NotifyRoom(ChannelRoom(5), MessageDeleted{MessageID: 2}))
	assert.Len(t, aliceSink.Events(), 1)
}

func TestHubAuthenticateHasNoSideEffects(t *testing.T) {
	hub := newSignalingHub()
	ctx := context.Background()
	_, aliceSink := connect(t, hub, 1)

	userID, err := hub.Authenticate(ctx, cred(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)

	_, err = hub.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Checking alice's credential again must not supersede her session.
	closed, _ := aliceSink.Closed()
	assert.False(t, closed)
	assert.Equal(t, 1, hub.OnlineCount())

	_, err = hub.Establish(ctx, 0, newFakeSink())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	s, err := hub.Establish(ctx, 2, newFakeSink())
	require.NoError(t, err)
	assert.Equal(t, SessionConnected, s.State())
	assert.True(t, hub.IsOnline(2))
}

func TestHubConcurrentConnects(t *testing.T) {
	const users = 50
	hub := NewHub(Deps{Authenticator: tokenAuth, Policy: syncPolicy()})

	var wg sync.WaitGroup
	sinks := make([]*fakeSink, users)
	for i := 0; i < users; i++ {
		sinks[i] = newFakeSink()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := hub.Connect(context.Background(), cred(int64(i+1)), sinks[i])
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, users, hub.OnlineCount())
	for i := range sinks {
		sinks[i].Reset()
	}

	n := hub.NotifyAllExcept(1, MessageDeleted{MessageID: 7})
	assert.Equal(t, users-1, n)
	assert.Empty(t, sinks[0].Events())
	for _, sink := range sinks[1:] {
		assert.Len(t, sink.Events(), 1)
	}
}

func TestHubCloseAll(t *testing.T) {
	hub := newSignalingHub()
	_, aliceSink := connect(t, hub, 1)
	_, bobSink := connect(t, hub, 2)

	assert.Equal(t, 2, hub.CloseAll("shutting down"))

	for _, sink := range []*fakeSink{aliceSink, bobSink} {
		closed, reason := sink.Closed()
		assert.True(t, closed)
		assert.Equal(t, "shutting down", reason)
	}
	assert.Zero(t, newSignalingHub().CloseAll("noop"))
}
