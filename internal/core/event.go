package core

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// EventKind names a notification the core emits to connections.
type EventKind int

const (
	// EventUserOnline announces a user's offline->online transition.
	EventUserOnline EventKind = iota
	// EventUserOffline announces a user's online->offline transition.
	EventUserOffline

	// EventIncomingCall rings the call target.
	EventIncomingCall
	// EventCallAccepted tells the caller the target picked up.
	EventCallAccepted
	// EventCallRejected tells the caller the target declined.
	EventCallRejected
	// EventCallEnded tells the other party the call is over.
	EventCallEnded
	// EventReceiveOffer relays an SDP offer.
	EventReceiveOffer
	// EventReceiveAnswer relays an SDP answer.
	EventReceiveAnswer
	// EventReceiveIceCandidate relays a trickled ICE candidate.
	EventReceiveIceCandidate

	EventUserTyping
	EventUserStoppedTyping
	EventUserTypingGroup
	EventUserStoppedTypingGroup
	EventMessagesRead

	// EventReceiveMessage pushes a direct message to its receiver.
	EventReceiveMessage
	// EventReceiveGroupMessage pushes a message to a group room.
	EventReceiveGroupMessage
	// EventReceiveChannelMessage pushes a post to a channel room.
	EventReceiveChannelMessage
	// EventMessageDeleted tells recipients a message was retracted.
	EventMessageDeleted
)

var eventNames = [...]string{
	EventUserOnline:             "UserOnline",
	EventUserOffline:            "UserOffline",
	EventIncomingCall:           "IncomingCall",
	EventCallAccepted:           "CallAccepted",
	EventCallRejected:           "CallRejected",
	EventCallEnded:              "CallEnded",
	EventReceiveOffer:           "ReceiveOffer",
	EventReceiveAnswer:          "ReceiveAnswer",
	EventReceiveIceCandidate:    "ReceiveIceCandidate",
	EventUserTyping:             "UserTyping",
	EventUserStoppedTyping:      "UserStoppedTyping",
	EventUserTypingGroup:        "UserTypingGroup",
	EventUserStoppedTypingGroup: "UserStoppedTypingGroup",
	EventMessagesRead:           "MessagesRead",
	EventReceiveMessage:         "ReceiveMessage",
	EventReceiveGroupMessage:    "ReceiveGroupMessage",
	EventReceiveChannelMessage:  "ReceiveChannelMessage",
	EventMessageDeleted:         "MessageDeleted",
}

// String returns the wire name of the event.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[k]
}

// Event is the closed set of payloads the core can push. Only types in this
// package implement it.
type Event interface {
	Kind() EventKind
	isEvent()
}

type eventMarker struct{}

func (eventMarker) isEvent() {}

// UserOnline is broadcast to everyone else when a user connects.
type UserOnline struct {
	eventMarker
	UserID int64 `json:"userId"`
}

// UserOffline is broadcast to everyone else when a user disconnects.
type UserOffline struct {
	eventMarker
	UserID   int64     `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// IncomingCall rings a call target. CallID is set when the call was
// initiated through the call log.
type IncomingCall struct {
	eventMarker
	CallID     string `json:"callId,omitempty"`
	CallerID   int64  `json:"callerId"`
	CallerName string `json:"callerName"`
	CallerPic  string `json:"callerPic,omitempty"`
	CallType   string `json:"callType"`
}

type CallAccepted struct {
	eventMarker
	AccepterID int64 `json:"accepterId"`
}

type CallRejected struct {
	eventMarker
	RejecterID int64 `json:"rejecterId"`
}

type CallEnded struct {
	eventMarker
}

type ReceiveOffer struct {
	eventMarker
	FromID int64                     `json:"fromId"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type ReceiveAnswer struct {
	eventMarker
	FromID int64                     `json:"fromId"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type ReceiveIceCandidate struct {
	eventMarker
	FromID    int64                   `json:"fromId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type UserTyping struct {
	eventMarker
	UserID int64 `json:"userId"`
}

type UserStoppedTyping struct {
	eventMarker
	UserID int64 `json:"userId"`
}

type UserTypingGroup struct {
	eventMarker
	UserID  int64 `json:"userId"`
	GroupID int64 `json:"groupId"`
}

type UserStoppedTypingGroup struct {
	eventMarker
	UserID  int64 `json:"userId"`
	GroupID int64 `json:"groupId"`
}

// MessagesRead tells a sender that the reader has seen their messages.
type MessagesRead struct {
	eventMarker
	ReaderID int64 `json:"readerId"`
}

type ReceiveMessage struct {
	eventMarker
	Message Message `json:"message"`
}

type ReceiveGroupMessage struct {
	eventMarker
	Message Message `json:"message"`
}

type ReceiveChannelMessage struct {
	eventMarker
	Message Message `json:"message"`
}

type MessageDeleted struct {
	eventMarker
	MessageID int64 `json:"messageId"`
}

func (UserOnline) Kind() EventKind             { return EventUserOnline }
func (UserOffline) Kind() EventKind            { return EventUserOffline }
func (IncomingCall) Kind() EventKind           { return EventIncomingCall }
func (CallAccepted) Kind() EventKind           { return EventCallAccepted }
func (CallRejected) Kind() EventKind           { return EventCallRejected }
func (CallEnded) Kind() EventKind              { return EventCallEnded }
func (ReceiveOffer) Kind() EventKind           { return EventReceiveOffer }
func (ReceiveAnswer) Kind() EventKind          { return EventReceiveAnswer }
func (ReceiveIceCandidate) Kind() EventKind    { return EventReceiveIceCandidate }
func (UserTyping) Kind() EventKind             { return EventUserTyping }
func (UserStoppedTyping) Kind() EventKind      { return EventUserStoppedTyping }
func (UserTypingGroup) Kind() EventKind        { return EventUserTypingGroup }
func (UserStoppedTypingGroup) Kind() EventKind { return EventUserStoppedTypingGroup }
func (MessagesRead) Kind() EventKind           { return EventMessagesRead }
func (ReceiveMessage) Kind() EventKind         { return EventReceiveMessage }
func (ReceiveGroupMessage) Kind() EventKind    { return EventReceiveGroupMessage }
func (ReceiveChannelMessage) Kind() EventKind  { return EventReceiveChannelMessage }
func (MessageDeleted) Kind() EventKind         { return EventMessageDeleted }
