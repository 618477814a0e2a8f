package handlers

import (
	"context"
	"encoding/json"

	"PPCollab/service/auth"
	"PPCollab/service/authz"
	"PPCollab/service/chat"
	"PPCollab/tools/decode"
	"PPCollab/tools/errs"
)

// 消息已由 REST 落库，这里只做房间内转发（排除发送者）

type messagePayload struct {
	ChannelID string          `json:"channelId"`
	Message   json.RawMessage `json:"message"`
}

type messageOut struct {
	ChannelID string          `json:"channelId"`
	Message   json.RawMessage `json:"message"`
	User      auth.Identity   `json:"user"`
}

func parseMessage(f *chat.Frame) (authz.Room, *messagePayload, error) {
	var p messagePayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return authz.Room{}, nil, errs.ErrMalformedRequest.WrapMsg("payload", "event", f.Event, "err", err)
	}
	if len(p.Message) == 0 || string(p.Message) == "null" {
		return authz.Room{}, nil, errs.ErrMalformedRequest.WrapMsg("missing message", "event", f.Event)
	}
	room, err := authz.ChannelRoom(p.ChannelID)
	if err != nil {
		return authz.Room{}, nil, err
	}
	return room, &p, nil
}

// RelayHandler message:send -> message:new，message:edit -> message:updated
type RelayHandler struct {
	in, out chat.EventType
}

func NewMessageSendHandler() chat.Handler {
	return &RelayHandler{in: chat.EventMessageSend, out: chat.EventMessageNew}
}

func NewMessageEditHandler() chat.Handler {
	return &RelayHandler{in: chat.EventMessageEdit, out: chat.EventMessageUpdated}
}

func (h *RelayHandler) Event() chat.EventType { return h.in }

func (h *RelayHandler) Handle(_ context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	room, p, err := parseMessage(f)
	if err != nil {
		return nil, err
	}
	if err := hc.RequireJoined(room); err != nil {
		return nil, err
	}
	ev, err := hc.NewEvent(h.out, room, messageOut{ChannelID: room.ID, Message: p.Message, User: hc.Conn().Identity()})
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.Broadcast{Event: ev}}, nil
}

type deletePayload struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// DeleteHandler message:delete -> message:deleted
type DeleteHandler struct{}

func NewMessageDeleteHandler() chat.Handler { return &DeleteHandler{} }

func (h *DeleteHandler) Event() chat.EventType { return chat.EventMessageDelete }

func (h *DeleteHandler) Handle(_ context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	p, err := decode.Payload[deletePayload](f.Data)
	if err != nil {
		return nil, errs.ErrMalformedRequest.WrapMsg("payload", "event", f.Event, "err", err)
	}
	if p.MessageID == "" {
		return nil, errs.ErrMalformedRequest.WrapMsg("missing messageId")
	}
	room, err := authz.ChannelRoom(p.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := hc.RequireJoined(room); err != nil {
		return nil, err
	}
	ev, err := hc.NewEvent(chat.EventMessageDeleted, room, map[string]any{
		"channelId": room.ID,
		"messageId": p.MessageID,
		"userId":    hc.Conn().IdentityID(),
	})
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.Broadcast{Event: ev}}, nil
}

type readPayload struct {
	ChannelID  string   `json:"channelId"`
	MessageIDs []string `json:"messageIds"`
}

// ReadHandler message:read -> message:seen，发给房间内其他人
type ReadHandler struct{}

func NewMessageReadHandler() chat.Handler { return &ReadHandler{} }

func (h *ReadHandler) Event() chat.EventType { return chat.EventMessageRead }

func (h *ReadHandler) Handle(_ context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	p, err := decode.Payload[readPayload](f.Data)
	if err != nil {
		return nil, errs.ErrMalformedRequest.WrapMsg("payload", "event", f.Event, "err", err)
	}
	if len(p.MessageIDs) == 0 {
		return nil, errs.ErrMalformedRequest.WrapMsg("missing messageIds")
	}
	room, err := authz.ChannelRoom(p.ChannelID)
	if err != nil {
		return nil, err
	}
	if err := hc.RequireJoined(room); err != nil {
		return nil, err
	}
	ev, err := hc.NewEvent(chat.EventMessageSeen, room, map[string]any{
		"channelId":  room.ID,
		"messageIds": p.MessageIDs,
		"userId":     hc.Conn().IdentityID(),
	})
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.Broadcast{Event: ev}}, nil
}
