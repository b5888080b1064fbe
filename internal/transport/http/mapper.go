package http

import (
	"encoding/json"

	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/proto"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// inboundToCommand decodes an inbound frame other than add-user, which the
// handler authorizes itself. Undecodable data yields a protocol error rather
// than closing the connection.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinChannel, proto.InboundTypeLeaveChannel:
		var data proto.ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid channel payload")
		}
		if data.Channel == "" {
			return nil, badRequest("channel is required")
		}
		kind := core.CommandJoinChannel
		if inbound.Type == proto.InboundTypeLeaveChannel {
			kind = core.CommandLeaveChannel
		}
		return &core.Command{Kind: kind, Channel: data.Channel}, nil

	case proto.InboundTypeSendMsg, proto.InboundTypeSendChannelMsg:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid message payload")
		}
		if data.To == "" {
			return nil, badRequest("recipient is required")
		}
		kind := core.CommandSendDirect
		if inbound.Type == proto.InboundTypeSendChannelMsg {
			kind = core.CommandSendChannel
		}
		return &core.Command{
			Kind: kind,
			To:   data.To,
			Message: core.Message{
				SenderName: data.SenderName,
				Avatar:     data.Avatar,
				Payload:    payloadFromProto(data.Msg),
			},
		}, nil

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid typing payload")
		}
		if data.To == "" {
			return nil, badRequest("typing target is required")
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping {
			kind = core.CommandStopTyping
		}
		return &core.Command{Kind: kind, To: data.To, Target: conversationKind(data.Type)}, nil

	case proto.InboundTypeMsgDelete:
		var data proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, badRequest("invalid delete payload")
		}
		if data.ID == "" {
			return nil, badRequest("message id is required")
		}
		return &core.Command{
			Kind:      core.CommandDeleteMessage,
			MessageID: data.ID,
			To:        data.To,
			Target:    conversationKind(data.Type),
		}, nil
	}
	return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
}

func conversationKind(t string) core.ConversationKind {
	if t == proto.ConversationChannel {
		return core.ConversationChannel
	}
	return core.ConversationDirect
}

func payloadFromProto(p proto.Payload) core.Payload {
	return core.Payload{
		Type:     core.PayloadType(p.Type),
		Text:     p.Text,
		AudioURL: p.AudioURL,
		Duration: p.Duration,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileSize: p.FileSize,
	}
}

func payloadToProto(p core.Payload) proto.Payload {
	return proto.Payload{
		Type:     string(p.Type),
		Text:     p.Text,
		AudioURL: p.AudioURL,
		Duration: p.Duration,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileSize: p.FileSize,
	}
}

// messageData renders a message as delivered live and by the history
// endpoint. For DMs "to" is the recipient, for channels the channel id.
func messageData(m core.Message) proto.MessageData {
	return proto.MessageData{
		ID:         m.ID,
		To:         m.Conversation.Peer(m.From),
		From:       m.From,
		Msg:        payloadToProto(m.Payload),
		SenderName: m.SenderName,
		Avatar:     m.Avatar,
		Type:       string(m.Conversation.Kind),
		CreatedAt:  m.CreatedAt,
	}
}

func event(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventOnlineUsers:
		online := ev.Online
		if online == nil {
			online = []string{}
		}
		return event(proto.EventOnlineUsers, online)
	case core.EventDirectMessage:
		return event(proto.EventMsgReceive, messageData(ev.Message))
	case core.EventChannelMessage:
		return event(proto.EventChannelMsgReceive, messageData(ev.Message))
	case core.EventDisplayTyping, core.EventHideTyping:
		name := proto.EventDisplayTyping
		if ev.Kind == core.EventHideTyping {
			name = proto.EventHideTyping
		}
		kind := ev.Typing.Kind
		if kind == "" {
			kind = core.ConversationDirect
		}
		return event(name, proto.TypingData{
			To:         ev.Typing.To,
			From:       ev.Typing.From,
			Type:       string(kind),
			SenderName: ev.Typing.Name,
		})
	case core.EventMessageDeleted:
		return event(proto.EventMsgDeleted, ev.MessageID)
	case core.EventError:
		if ev.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: ev.Error.Code, Msg: ev.Error.Message},
		}
	}
	return proto.Outbound{Type: proto.OutboundTypeEvent}
}
