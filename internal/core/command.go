package core

import "github.com/pion/webrtc/v4"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandCallInvite rings TargetUserID.
	CommandCallInvite CommandKind = iota
	// CommandCallAccept answers a call from TargetUserID.
	CommandCallAccept
	// CommandCallReject declines a call from TargetUserID.
	CommandCallReject
	// CommandCallEnd hangs up on TargetUserID.
	CommandCallEnd
	// CommandOffer relays an SDP offer to TargetUserID.
	CommandOffer
	// CommandAnswer relays an SDP answer to TargetUserID.
	CommandAnswer
	// CommandIceCandidate relays an ICE candidate to TargetUserID.
	CommandIceCandidate

	CommandTypingStart
	CommandTypingStop
	CommandGroupTypingStart
	CommandGroupTypingStop

	// CommandMarkRead marks messages from TargetUserID as read.
	CommandMarkRead

	CommandJoinGroup
	CommandLeaveGroup
	CommandJoinChannel
	CommandLeaveChannel
)

// Command represents an action requested by a connected client.
type Command struct {
	Kind         CommandKind
	TargetUserID int64
	GroupID      int64
	ChannelID    int64
	CallType     string
	SDP          webrtc.SessionDescription
	Candidate    webrtc.ICECandidateInit
}
