package http

import (
	"encoding/json"

	"github.com/akorchagin/foliochat/internal/core"
	"github.com/akorchagin/foliochat/internal/proto"
)

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := unmarshalData(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{
			Kind: core.CommandJoinRoom,
			Room: join.Room,
		}, nil, nil
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := unmarshalData(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.Room == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			Room:    msg.Room,
			Content: msg.Content,
		}, nil, nil
	case proto.InboundTypeLogout:
		return &core.Command{Kind: core.CommandLogout}, nil, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func eventMessage(msg core.Message) proto.EventMessage {
	return proto.EventMessage{
		ID:      msg.ID,
		Sender:  msg.Sender,
		Content: msg.Content,
		Room:    msg.Room,
		TS:      msg.CreatedAt.Unix(),
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data:  eventMessage(event.Message),
		}
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, eventMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameHistory,
			Data: proto.EventHistory{
				Room:     event.Room,
				Messages: messages,
			},
		}
	case core.EventPresence:
		users := make([]proto.PresenceEntry, 0, len(event.Users))
		for _, u := range event.Users {
			users = append(users, proto.PresenceEntry{UserID: u.UserID, Username: u.Username})
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNamePresence,
			Data: proto.EventPresence{
				Room:  event.Room,
				Users: users,
			},
		}
	case core.EventAuthRequired:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameAuthRequired,
			Data:  proto.EventNotice{Message: event.Reason},
		}
	case core.EventUnauthorized:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameUnauthorized,
			Data:  proto.EventNotice{Room: event.Room, Message: event.Reason},
		}
	case core.EventMessageError:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessageError,
			Data:  proto.EventNotice{Room: event.Room, Message: event.Reason},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
