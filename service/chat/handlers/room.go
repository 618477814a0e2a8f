package handlers

import (
	"context"

	"PPCollab/service/authz"
	"PPCollab/service/chat"
	"PPCollab/tools/decode"
	"PPCollab/tools/errs"
)

// roomArg 兼容 "abc" 与 {"channelId":"abc"} 两种写法
func roomArg(f *chat.Frame, kind authz.RoomKind) (authz.Room, error) {
	field := "channelId"
	if kind == authz.KindProject {
		field = "projectId"
	}
	id, err := decode.StringOrField(f.Data, field)
	if err != nil {
		return authz.Room{}, errs.ErrMalformedRequest.WrapMsg("missing "+field, "event", f.Event, "err", err)
	}
	if kind == authz.KindProject {
		return authz.ProjectRoom(id)
	}
	return authz.ChannelRoom(id)
}

// JoinHandler channel:join / join:project
type JoinHandler struct {
	event chat.EventType
	kind  authz.RoomKind
}

func NewChannelJoinHandler() chat.Handler {
	return &JoinHandler{event: chat.EventChannelJoin, kind: authz.KindChannel}
}

func NewProjectJoinHandler() chat.Handler {
	return &JoinHandler{event: chat.EventProjectJoin, kind: authz.KindProject}
}

func (h *JoinHandler) Event() chat.EventType { return h.event }
func (h *JoinHandler) AlwaysAck() bool       { return true }

func (h *JoinHandler) Handle(ctx context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	room, err := roomArg(f, h.kind)
	if err != nil {
		return nil, err
	}
	// 已加入的房间重复 join 只重发快照
	if !hc.Joined(room) {
		if err := hc.Authorize(ctx, room); err != nil {
			return nil, err
		}
	}
	return []chat.Effect{chat.JoinRoom{Room: room}}, nil
}

// LeaveHandler channel:leave / leave:project，未加入时也返回成功
type LeaveHandler struct {
	event chat.EventType
	kind  authz.RoomKind
}

func NewChannelLeaveHandler() chat.Handler {
	return &LeaveHandler{event: chat.EventChannelLeave, kind: authz.KindChannel}
}

func NewProjectLeaveHandler() chat.Handler {
	return &LeaveHandler{event: chat.EventProjectLeave, kind: authz.KindProject}
}

func (h *LeaveHandler) Event() chat.EventType { return h.event }
func (h *LeaveHandler) AlwaysAck() bool       { return true }

func (h *LeaveHandler) Handle(_ context.Context, _ *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	room, err := roomArg(f, h.kind)
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.LeaveRoom{Room: room}}, nil
}
