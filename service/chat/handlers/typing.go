package handlers

import (
	"context"

	"PPCollab/service/authz"
	"PPCollab/service/chat"
)

// TypingHandler typing:start 受节流限制，typing:stop 不限
type TypingHandler struct {
	in, out chat.EventType
	limited bool
}

func NewTypingStartHandler() chat.Handler {
	return &TypingHandler{in: chat.EventTypingStart, out: chat.EventUserTyping, limited: true}
}

func NewTypingStopHandler() chat.Handler {
	return &TypingHandler{in: chat.EventTypingStop, out: chat.EventUserStopTyping}
}

func (h *TypingHandler) Event() chat.EventType { return h.in }

func (h *TypingHandler) Handle(_ context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	room, err := roomArg(f, authz.KindChannel)
	if err != nil {
		return nil, err
	}
	if err := hc.RequireJoined(room); err != nil {
		return nil, err
	}
	if h.limited && !hc.ShouldEmit(room) {
		// 冷却期内静默丢弃，不算错误
		return nil, nil
	}
	id := hc.Conn().Identity()
	ev, err := hc.NewEvent(h.out, room, map[string]string{
		"channelId":   room.ID,
		"userId":      id.ID,
		"displayName": id.DisplayName,
	})
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.Broadcast{Event: ev}}, nil
}
