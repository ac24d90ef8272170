package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/connectus-realtime/internal/store"
)

// fakeSink records every pushed event. Delivery in the core is synchronous,
// so assertions can read the recorded slice right after the call returns.
type fakeSink struct {
	mu          sync.Mutex
	events      []Event
	closed      bool
	closeReason string
	pushErr     error
	panicOnPush bool
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) Push(ev Event) error {
	if s.panicOnPush {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrConnectionClosed
	}
	if s.pushErr != nil {
		return s.pushErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSink) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.closeReason = reason
	}
}

func (s *fakeSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *fakeSink) Kinds() []EventKind {
	events := s.Events()
	kinds := make([]EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

func (s *fakeSink) Closed() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.closeReason
}

func (s *fakeSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// mustEvent returns the first recorded event of type T.
func mustEvent[T Event](t *testing.T, sink *fakeSink) T {
	t.Helper()
	for _, ev := range sink.Events() {
		if typed, ok := ev.(T); ok {
			return typed
		}
	}
	var zero T
	t.Fatalf("expected event %T not received, got %v", zero, sink.Kinds())
	return zero
}

// countEvents returns how many recorded events have type T.
func countEvents[T Event](sink *fakeSink) int {
	n := 0
	for _, ev := range sink.Events() {
		if _, ok := ev.(T); ok {
			n++
		}
	}
	return n
}

// tokenAuth accepts credentials of the form "user:<id>".
var tokenAuth = AuthenticatorFunc(func(_ context.Context, credential string) (int64, error) {
	raw, ok := strings.CutPrefix(credential, "user:")
	if !ok {
		return 0, errors.New("malformed credential")
	}
	return strconv.ParseInt(raw, 10, 64)
})

func cred(userID int64) string { return fmt.Sprintf("user:%d", userID) }

type presenceRecord struct {
	UserID int64
	Online bool
	At     time.Time
}

type fakePresenceStore struct {
	mu       sync.Mutex
	records  []presenceRecord
	failures int
	calls    int
}

func (f *fakePresenceStore) SetOnline(_ context.Context, userID int64, online bool, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	f.records = append(f.records, presenceRecord{UserID: userID, Online: online, At: at})
	return nil
}

func (f *fakePresenceStore) Records() []presenceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceRecord(nil), f.records...)
}

func (f *fakePresenceStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMembershipStore struct {
	groups   map[int64][]int64
	channels map[int64][]int64
	err      error
}

func (f *fakeMembershipStore) ListActiveGroupIDs(_ context.Context, userID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[userID], nil
}

func (f *fakeMembershipStore) ListActiveChannelIDs(_ context.Context, userID int64) ([]int64, error) {
	return f.channels[userID], nil
}

func (f *fakeMembershipStore) IsActiveGroupMember(_ context.Context, userID, groupID int64) (bool, error) {
	for _, id := range f.groups[userID] {
		if id == groupID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembershipStore) IsActiveChannelSubscriber(_ context.Context, userID, channelID int64) (bool, error) {
	for _, id := range f.channels[userID] {
		if id == channelID {
			return true, nil
		}
	}
	return false, nil
}

type fakeUserStore map[int64]*store.User

func (f fakeUserStore) GetUserByID(_ context.Context, id int64) (*store.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

type readCall struct {
	ReaderID, SenderID int64
}

type fakeMessageStore struct {
	mu    sync.Mutex
	reads []readCall
	err   error
}

func (f *fakeMessageStore) MarkConversationRead(_ context.Context, readerID, senderID int64, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.reads = append(f.reads, readCall{ReaderID: readerID, SenderID: senderID})
	return 1, nil
}

func (f *fakeMessageStore) MarkDelivered(context.Context, int64) error { return nil }

func syncPolicy() PresencePolicy {
	return PresencePolicy{Mode: PersistSync, Retries: 0, Timeout: time.Second, CloseSuperseded: true}
}

// connect registers a user through the hub and fails the test on error.
func connect(t *testing.T, hub *Hub, userID int64) (*Session, *fakeSink) {
	t.Helper()
	sink := newFakeSink()
	s, err := hub.Connect(context.Background(), cred(userID), sink)
	if err != nil {
		t.Fatalf("connect user %d: %v", userID, err)
	}
	return s, sink
}
