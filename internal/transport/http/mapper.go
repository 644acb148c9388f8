package http

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/proto"
	"github.com/vovakirdan/wirechat-server/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// checkIdentity rejects payloads that claim to act for someone other than the connection.
func checkIdentity(client *core.Client, claimed string) *proto.Error {
	if claimed != "" && claimed != client.Identity {
		return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "identity does not match connection"}
	}
	return nil
}

func inboundToCommand(client *core.Client, inbound proto.Inbound) (core.Command, *proto.Error) {
	decode := func(v any) *proto.Error {
		if len(inbound.Data) == 0 {
			return badRequest("data is required")
		}
		if err := json.Unmarshal(inbound.Data, v); err != nil {
			return badRequest("malformed data")
		}
		return nil
	}

	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if data.Room == "" {
			return nil, badRequest("room is required")
		}
		if inbound.Type == proto.InboundTypeLeaveRoom {
			return core.LeaveRoom{Room: data.Room}, nil
		}
		return core.JoinRoom{Room: data.Room}, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if data.Room == "" {
			return nil, badRequest("room is required")
		}
		return core.SendMessage{
			Room: data.Room,
			Content: core.Content{
				Text:          data.Message.Text,
				AttachmentRef: data.Message.FileURL,
				ReplyTo:       data.Message.ReplyTo,
			},
		}, nil
	case proto.InboundTypeEditMessage:
		var data proto.EditMessageData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if data.MessageID == 0 {
			return nil, badRequest("messageId is required")
		}
		return core.EditMessage{Room: data.Room, MessageID: data.MessageID, Text: data.Text}, nil
	case proto.InboundTypeDeleteMessage:
		var data proto.DeleteMessageData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if data.MessageID == 0 {
			return nil, badRequest("messageId is required")
		}
		return core.DeleteMessage{Room: data.Room, MessageID: data.MessageID}, nil
	case proto.InboundTypeReact:
		var data proto.ReactData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if perr := checkIdentity(client, data.Identity); perr != nil {
			return nil, perr
		}
		if data.MessageID == 0 {
			return nil, badRequest("messageId is required")
		}
		return core.React{Room: data.Room, MessageID: data.MessageID, Emoji: data.Emoji}, nil
	case proto.InboundTypeTyping:
		var data proto.TypingData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if perr := checkIdentity(client, data.Identity); perr != nil {
			return nil, perr
		}
		if data.Room == "" {
			return nil, badRequest("room is required")
		}
		return core.SetTyping{Room: data.Room, IsTyping: data.IsTyping}, nil
	case proto.InboundTypeMessageDelivered, proto.InboundTypeMessageRead:
		var data proto.AckData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if perr := checkIdentity(client, data.Identity); perr != nil {
			return nil, perr
		}
		if data.MessageID == 0 {
			return nil, badRequest("messageId is required")
		}
		if inbound.Type == proto.InboundTypeMessageRead {
			return core.AckRead{MessageID: data.MessageID}, nil
		}
		return core.AckDelivered{MessageID: data.MessageID}, nil
	case proto.InboundTypeOpenDirect:
		var data proto.OpenDirectData
		if perr := decode(&data); perr != nil {
			return nil, perr
		}
		if data.Peer == "" {
			return nil, badRequest("peer is required")
		}
		return core.OpenDirect{Peer: data.Peer}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(event core.Event) proto.Outbound {
	switch ev := event.(type) {
	case core.ReceiveMessage:
		return eventOutbound(proto.EventReceiveMessage, messageToProto(ev.Message))
	case core.MessageEdited:
		return eventOutbound(proto.EventMessageEdited, messageToProto(ev.Message))
	case core.MessageDeleted:
		return eventOutbound(proto.EventMessageDeleted, proto.EventMessageDeletedData{Room: ev.Room, MessageID: ev.MessageID})
	case core.MessageStatusUpdate:
		return eventOutbound(proto.EventMessageStatusUpdate, proto.EventMessageStatus{
			Message: messageToProto(ev.Message),
			Status:  string(ev.Message.Status()),
		})
	case core.ReactionUpdate:
		return eventOutbound(proto.EventReactionUpdate, messageToProto(ev.Message))
	case core.Typing:
		return eventOutbound(proto.EventTyping, proto.EventTypingData{Room: ev.Room, Identity: ev.Identity, IsTyping: ev.IsTyping})
	case core.PresenceUpdate:
		return eventOutbound(proto.EventPresenceUpdate, proto.EventPresence{Identity: ev.Identity, Status: string(ev.Status)})
	case core.History:
		messages := make([]proto.Message, 0, len(ev.Messages))
		for _, msg := range ev.Messages {
			messages = append(messages, messageToProto(msg))
		}
		return eventOutbound(proto.EventHistory, proto.EventHistoryData{Room: ev.Room, Messages: messages})
	case core.ConversationOpened:
		return eventOutbound(proto.EventConversationOpened, conversationToProto(ev.Conversation))
	case core.ConversationDeleted:
		return eventOutbound(proto.EventConversationDeleted, proto.EventConversationDeletedData{ConversationID: ev.ConversationID})
	case core.ErrorEvent:
		if ev.Err == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Event: proto.EventErrorMessage, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Event: proto.EventErrorMessage,
			Error: &proto.Error{Code: ev.Err.Code, Msg: ev.Err.Message, Op: ev.Op},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messageToProto(msg *store.Message) proto.Message {
	reactions := make([]proto.Reaction, 0, len(msg.Reactions))
	for _, r := range msg.Reactions {
		reactions = append(reactions, proto.Reaction{Identity: r.Identity, Emoji: r.Emoji})
	}
	return proto.Message{
		ID:            msg.ID,
		Room:          msg.Room,
		Sender:        msg.Sender,
		Text:          msg.Text,
		AttachmentRef: msg.AttachmentRef,
		ReplyTo:       msg.ReplyTo,
		Reactions:     reactions,
		DeliveredTo:   nonNil(msg.DeliveredTo),
		ReadBy:        nonNil(msg.ReadBy),
		Edited:        msg.Edited,
		CreatedAt:     msg.CreatedAt,
	}
}

func conversationToProto(conv *store.Conversation) proto.Conversation {
	return proto.Conversation{
		ID:            conv.ID,
		Participants:  nonNil(conv.Participants),
		IsGroup:       conv.IsGroup,
		Name:          conv.Name,
		LastMessageID: conv.LastMessageID,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
