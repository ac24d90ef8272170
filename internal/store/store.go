package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user profile as seen by the realtime core.
type User struct {
	ID                int64
	Username          string
	FullName          string
	ProfilePictureURL string
	IsOnline          bool
	LastSeen          *time.Time
	CreatedAt         time.Time
}

// DisplayName returns the full name, falling back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Message is the persisted subset of a chat message the core touches.
type Message struct {
	ID          int64
	SenderID    int64
	ReceiverID  *int64
	GroupID     *int64
	ChannelID   *int64
	Content     string
	IsRead      bool
	ReadAt      *time.Time
	IsDelivered bool
	SentAt      time.Time
}

// CallType is the media kind of a call.
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus is the lifecycle status of a call log.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusRejected  CallStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusRejected:
		return true
	default:
		return false
	}
}

// CallLog is the durable record of a call.
type CallLog struct {
	ID              string // UUID
	CallerID        int64
	ReceiverID      int64
	Type            CallType
	Status          CallStatus
	StartedAt       time.Time
	AnsweredAt      *time.Time
	EndedAt         *time.Time
	DurationSeconds *int64
}

// PresenceStore persists the online flag and last-seen time.
type PresenceStore interface {
	// SetOnline records the user's presence at the given instant.
	SetOnline(ctx context.Context, userID int64, online bool, at time.Time) error
}

// UserStore resolves user profiles.
type UserStore interface {
	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// MembershipStore answers which groups and channels a user actively belongs to.
type MembershipStore interface {
	ListActiveGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	ListActiveChannelIDs(ctx context.Context, userID int64) ([]int64, error)
	IsActiveGroupMember(ctx context.Context, userID, groupID int64) (bool, error)
	IsActiveChannelSubscriber(ctx context.Context, userID, channelID int64) (bool, error)
}

// MessageStore handles the read and delivery flags of messages.
type MessageStore interface {
	// MarkConversationRead marks every unread direct message from senderID to
	// readerID as read and returns how many were updated.
	MarkConversationRead(ctx context.Context, readerID, senderID int64, at time.Time) (int64, error)

	// MarkDelivered flags a message as delivered to at least one recipient.
	MarkDelivered(ctx context.Context, messageID int64) error
}

// CallLogStore handles call log persistence.
type CallLogStore interface {
	CreateCallLog(ctx context.Context, log *CallLog) error
	UpdateCallLog(ctx context.Context, log *CallLog) error
	// GetCallLog returns ErrNotFound if absent.
	GetCallLog(ctx context.Context, id string) (*CallLog, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	PresenceStore
	UserStore
	MembershipStore
	MessageStore
	CallLogStore

	// Close closes the underlying database connection.
	Close() error
}
