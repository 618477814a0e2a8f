package handlers

import (
	"context"
	"encoding/json"

	"PPCollab/service/auth"
	"PPCollab/service/authz"
	"PPCollab/service/chat"
	"PPCollab/tools/errs"
)

// task:create / task:update 只是客户端提示；权威的 task:created 由 REST 入口发布。
// 这里转发给项目房间的其他人，并标记 advisory

type taskPayload struct {
	ProjectID string          `json:"projectId"`
	Task      json.RawMessage `json:"task"`
}

type taskOut struct {
	ProjectID string          `json:"projectId"`
	Task      json.RawMessage `json:"task"`
	User      auth.Identity   `json:"user"`
	Advisory  bool            `json:"advisory"`
}

type TaskHintHandler struct {
	in, out chat.EventType
}

func NewTaskCreateHandler() chat.Handler {
	return &TaskHintHandler{in: chat.EventTaskCreate, out: chat.EventTaskCreated}
}

func NewTaskUpdateHandler() chat.Handler {
	return &TaskHintHandler{in: chat.EventTaskUpdate, out: chat.EventTaskUpdated}
}

func (h *TaskHintHandler) Event() chat.EventType { return h.in }

func (h *TaskHintHandler) Handle(_ context.Context, hc *chat.Context, f *chat.Frame) ([]chat.Effect, error) {
	var p taskPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return nil, errs.ErrMalformedRequest.WrapMsg("payload", "event", f.Event, "err", err)
	}
	if len(p.Task) == 0 || string(p.Task) == "null" {
		return nil, errs.ErrMalformedRequest.WrapMsg("missing task", "event", f.Event)
	}
	room, err := authz.ProjectRoom(p.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := hc.RequireJoined(room); err != nil {
		return nil, err
	}
	ev, err := hc.NewEvent(h.out, room, taskOut{
		ProjectID: room.ID,
		Task:      p.Task,
		User:      hc.Conn().Identity(),
		Advisory:  true,
	})
	if err != nil {
		return nil, err
	}
	return []chat.Effect{chat.Broadcast{Event: ev}}, nil
}
