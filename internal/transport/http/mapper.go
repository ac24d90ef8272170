package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/proto"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func decodeData(data []byte, v any) *proto.Error {
	if len(data) == 0 {
		return badRequest("data is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid data: " + err.Error())
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeCallInvite:
		var d proto.CallInviteData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		return &core.Command{Kind: core.CommandCallInvite, TargetUserID: d.TargetID, CallType: d.CallType}, nil
	case proto.InboundTypeCallAccept, proto.InboundTypeCallReject:
		var d proto.CallerData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandCallAccept
		if inbound.Type == proto.InboundTypeCallReject {
			kind = core.CommandCallReject
		}
		return &core.Command{Kind: kind, TargetUserID: d.CallerID}, nil
	case proto.InboundTypeCallEnd:
		var d proto.CallEndData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		return &core.Command{Kind: core.CommandCallEnd, TargetUserID: d.OtherUserID}, nil
	case proto.InboundTypeOffer, proto.InboundTypeAnswer:
		var d proto.SDPData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandOffer
		if inbound.Type == proto.InboundTypeAnswer {
			kind = core.CommandAnswer
		}
		return &core.Command{Kind: kind, TargetUserID: d.TargetID, SDP: d.SDP}, nil
	case proto.InboundTypeIceCandidate:
		var d proto.IceCandidateData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		return &core.Command{Kind: core.CommandIceCandidate, TargetUserID: d.TargetID, Candidate: d.Candidate}, nil
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var d proto.TypingData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, TargetUserID: d.ReceiverID}, nil
	case proto.InboundTypeGroupTypingStart, proto.InboundTypeGroupTypingStop:
		var d proto.GroupData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandGroupTypingStart
		if inbound.Type == proto.InboundTypeGroupTypingStop {
			kind = core.CommandGroupTypingStop
		}
		return &core.Command{Kind: kind, GroupID: d.GroupID}, nil
	case proto.InboundTypeMarkRead:
		var d proto.MarkReadData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		return &core.Command{Kind: core.CommandMarkRead, TargetUserID: d.SenderID}, nil
	case proto.InboundTypeJoinGroup, proto.InboundTypeLeaveGroup:
		var d proto.GroupData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandJoinGroup
		if inbound.Type == proto.InboundTypeLeaveGroup {
			kind = core.CommandLeaveGroup
		}
		return &core.Command{Kind: kind, GroupID: d.GroupID}, nil
	case proto.InboundTypeJoinChannel, proto.InboundTypeLeaveChannel:
		var d proto.ChannelData
		if e := decodeData(inbound.Data, &d); e != nil {
			return nil, e
		}
		kind := core.CommandJoinChannel
		if inbound.Type == proto.InboundTypeLeaveChannel {
			kind = core.CommandLeaveChannel
		}
		return &core.Command{Kind: kind, ChannelID: d.ChannelID}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeUnknownCommand, Msg: "unknown message type"}
	}
}

// Event payloads carry their own wire tags, so the envelope only adds the name.
func outboundFromEvent(ev core.Event) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: ev.Kind().String(),
		Data:  ev,
	}
}

func errorFromCore(err error) *proto.Error {
	ce := core.ToCoreError(err)
	if ce == nil {
		return nil
	}
	return &proto.Error{Code: ce.Code, Msg: ce.Message}
}

// eventFromPush decodes a server-pushed event by wire name. Only events that
// make sense to broadcast from the CRUD layer are accepted.
func eventFromPush(name string, data json.RawMessage) (core.Event, error) {
	var (
		ev  core.Event
		err error
	)
	switch name {
	case core.EventUserOnline.String():
		var v core.UserOnline
		err = json.Unmarshal(data, &v)
		ev = v
	case core.EventUserOffline.String():
		var v core.UserOffline
		err = json.Unmarshal(data, &v)
		ev = v
	case core.EventMessageDeleted.String():
		var v core.MessageDeleted
		err = json.Unmarshal(data, &v)
		ev = v
	case core.EventReceiveMessage.String():
		var v core.ReceiveMessage
		err = json.Unmarshal(data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("event %q cannot be pushed", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return ev, nil
}
