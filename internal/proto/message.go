package proto

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeCallInvite       = "call-invite"
	InboundTypeCallAccept       = "call-accept"
	InboundTypeCallReject       = "call-reject"
	InboundTypeCallEnd          = "call-end"
	InboundTypeOffer            = "offer"
	InboundTypeAnswer           = "answer"
	InboundTypeIceCandidate     = "ice-candidate"
	InboundTypeTypingStart      = "typing-start"
	InboundTypeTypingStop       = "typing-stop"
	InboundTypeGroupTypingStart = "group-typing-start"
	InboundTypeGroupTypingStop  = "group-typing-stop"
	InboundTypeMarkRead         = "mark-read"
	InboundTypeJoinGroup        = "join-group"
	InboundTypeLeaveGroup       = "leave-group"
	InboundTypeJoinChannel      = "join-channel"
	InboundTypeLeaveChannel     = "leave-channel"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// CallInviteData rings another user.
type CallInviteData struct {
	TargetID int64  `json:"targetId"`
	CallType string `json:"callType"`
}

// CallerData answers a call from CallerID.
type CallerData struct {
	CallerID int64 `json:"callerId"`
}

// CallEndData hangs up on the other party.
type CallEndData struct {
	OtherUserID int64 `json:"otherUserId"`
}

// SDPData carries an offer or answer.
type SDPData struct {
	TargetID int64                     `json:"targetId"`
	SDP      webrtc.SessionDescription `json:"sdp"`
}

// IceCandidateData carries a trickled ICE candidate.
type IceCandidateData struct {
	TargetID  int64                   `json:"targetId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type TypingData struct {
	ReceiverID int64 `json:"receiverId"`
}

type GroupData struct {
	GroupID int64 `json:"groupId"`
}

type ChannelData struct {
	ChannelID int64 `json:"channelId"`
}

// MarkReadData marks every message from SenderID as read.
type MarkReadData struct {
	SenderID int64 `json:"senderId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
