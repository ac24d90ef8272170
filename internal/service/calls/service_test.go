package calls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/connectus-realtime/internal/store"
	"github.com/vovakirdan/connectus-realtime/internal/store/sqlite"
)

type relayCall struct {
	Op       string
	From, To int64
}

type fakeRelay struct {
	online map[int64]bool
	calls  []relayCall
}

func (r *fakeRelay) deliver(op string, from, to int64) int {
	r.calls = append(r.calls, relayCall{Op: op, From: from, To: to})
	if r.online[to] {
		return 1
	}
	return 0
}

func (r *fakeRelay) Invite(_ context.Context, _ string, callerID, targetID int64, _ string) int {
	return r.deliver("invite", callerID, targetID)
}
func (r *fakeRelay) Accept(accepterID, callerID int64) int { return r.deliver("accept", accepterID, callerID) }
func (r *fakeRelay) Reject(rejecterID, callerID int64) int { return r.deliver("reject", rejecterID, callerID) }
func (r *fakeRelay) End(otherUserID int64) int             { return r.deliver("end", 0, otherUserID) }

type fixture struct {
	svc            *Service
	relay          *fakeRelay
	clock          time.Time
	caller, callee int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	caller, err := st.CreateUser(ctx, "caller", "Caller", "")
	require.NoError(t, err)
	callee, err := st.CreateUser(ctx, "callee", "Callee", "")
	require.NoError(t, err)

	f := &fixture{
		relay:  &fakeRelay{online: map[int64]bool{caller.ID: true, callee.ID: true}},
		clock:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		caller: caller.ID,
		callee: callee.ID,
	}
	f.svc = New(st, st, f.relay, nil)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func TestInitiateRingsReceiver(t *testing.T) {
	f := newFixture(t)

	call, err := f.svc.Initiate(context.Background(), f.caller, f.callee, store.CallTypeVideo)
	require.NoError(t, err)
	assert.NotEmpty(t, call.ID)
	assert.Equal(t, store.CallStatusRinging, call.Status)
	assert.Equal(t, []relayCall{{Op: "invite", From: f.caller, To: f.callee}}, f.relay.calls)

	stored, err := f.svc.Get(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusRinging, stored.Status)
	assert.Equal(t, store.CallTypeVideo, stored.Type)
}

func TestInitiateOfflineReceiverIsMissed(t *testing.T) {
	f := newFixture(t)
	f.relay.online[f.callee] = false

	call, err := f.svc.Initiate(context.Background(), f.caller, f.callee, "")
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusMissed, call.Status)
	assert.Equal(t, store.CallTypeVoice, call.Type)

	stored, err := f.svc.Get(context.Background(), call.ID)
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusMissed, stored.Status)

	_, err = f.svc.Answer(context.Background(), call.ID, f.callee)
	assert.ErrorIs(t, err, ErrCallEnded)
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, f.caller, f.caller, store.CallTypeVoice)
	assert.ErrorIs(t, err, ErrCannotCallSelf)

	_, err = f.svc.Initiate(ctx, f.caller, 9999, store.CallTypeVoice)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Initiate(ctx, f.caller, f.callee, "hologram")
	assert.ErrorIs(t, err, ErrInvalidCallType)

	assert.Empty(t, f.relay.calls)
}

func TestAnswerThenEndRecordsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.caller, f.callee, store.CallTypeVoice)
	require.NoError(t, err)

	_, err = f.svc.Answer(ctx, call.ID, f.caller)
	assert.ErrorIs(t, err, ErrNotReceiver)

	f.clock = f.clock.Add(3 * time.Second)
	answered, err := f.svc.Answer(ctx, call.ID, f.callee)
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusAnswered, answered.Status)
	require.NotNil(t, answered.AnsweredAt)

	_, err = f.svc.Answer(ctx, call.ID, f.callee)
	assert.ErrorIs(t, err, ErrNotRinging)

	f.clock = f.clock.Add(90 * time.Second)
	ended, err := f.svc.End(ctx, call.ID, f.callee)
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusEnded, ended.Status)
	require.NotNil(t, ended.DurationSeconds)
	assert.EqualValues(t, 90, *ended.DurationSeconds)

	assert.Equal(t, []relayCall{
		{Op: "invite", From: f.caller, To: f.callee},
		{Op: "accept", From: f.callee, To: f.caller},
		{Op: "end", To: f.caller},
	}, f.relay.calls)

	_, err = f.svc.End(ctx, call.ID, f.caller)
	assert.ErrorIs(t, err, ErrCallEnded)
}

func TestRejectNotifiesCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.caller, f.callee, store.CallTypeVoice)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, call.ID, f.callee)
	require.NoError(t, err)
	assert.Equal(t, store.CallStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.EndedAt)
	assert.Equal(t, relayCall{Op: "reject", From: f.callee, To: f.caller}, f.relay.calls[len(f.relay.calls)-1])
}

func TestEndRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.svc.Initiate(ctx, f.caller, f.callee, store.CallTypeVoice)
	require.NoError(t, err)

	_, err = f.svc.End(ctx, call.ID, 4242)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.svc.End(ctx, "nope", f.caller)
	assert.ErrorIs(t, err, ErrCallNotFound)

	ended, err := f.svc.End(ctx, call.ID, f.caller)
	require.NoError(t, err)
	assert.Nil(t, ended.DurationSeconds, "never answered")
	assert.Equal(t, relayCall{Op: "end", To: f.callee}, f.relay.calls[len(f.relay.calls)-1])
}
