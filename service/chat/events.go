package chat

import (
	"encoding/json"
	"strings"
	"time"

	"PPCollab/service/authz"
	"PPCollab/tools/errs"
	"PPCollab/tools/ids"
)

// EventType 帧上的事件名
type EventType string

// 客户端 -> 服务端
const (
	EventChannelJoin   EventType = "channel:join"
	EventChannelLeave  EventType = "channel:leave"
	EventMessageSend   EventType = "message:send"
	EventMessageEdit   EventType = "message:edit"
	EventMessageDelete EventType = "message:delete"
	EventTypingStart   EventType = "typing:start"
	EventTypingStop    EventType = "typing:stop"
	EventMessageRead   EventType = "message:read"
	EventProjectJoin   EventType = "join:project"
	EventProjectLeave  EventType = "leave:project"
	EventTaskCreate    EventType = "task:create"
	EventTaskUpdate    EventType = "task:update"
)

// 服务端 -> 客户端
const (
	EventChannelUserJoined EventType = "channel:userJoined"
	EventChannelUserLeft   EventType = "channel:userLeft"
	EventMessageNew        EventType = "message:new"
	EventMessageUpdated    EventType = "message:updated"
	EventMessageDeleted    EventType = "message:deleted"
	EventMessageSeen       EventType = "message:seen"
	EventUserTyping        EventType = "user:typing"
	EventUserStopTyping    EventType = "user:stopTyping"
	EventRoomUsers         EventType = "room:users"
	EventTaskCreated       EventType = "task:created"
	EventTaskUpdated       EventType = "task:updated"
	EventTaskDeleted       EventType = "task:deleted"
	EventError             EventType = "error"
	EventAck               EventType = "ack"
)

// REST 入口允许发布的事件
var restEvents = map[EventType]struct{}{
	EventTaskCreated:    {},
	EventTaskUpdated:    {},
	EventTaskDeleted:    {},
	EventMessageNew:     {},
	EventMessageUpdated: {},
	EventMessageDeleted: {},
}

// Origin 决定是否排除发起连接
type Origin string

const (
	OriginSocket Origin = "socket"
	OriginREST   Origin = "rest"
)

const eventVersion = 1

// DomainEvent 路由单元；核心不校验 payload 的业务规则
type DomainEvent struct {
	ID           string          `json:"id"`
	Version      int             `json:"version"`
	Type         EventType       `json:"type"`
	RoomID       string          `json:"roomId"`
	OriginatorID string          `json:"originatorId,omitempty"`
	OriginConnID string          `json:"originConnId,omitempty"`
	Origin       Origin          `json:"origin"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	EmittedAt    time.Time       `json:"emittedAt"`
}

// Excluded 需要跳过的本地连接；REST 事件不排除任何人
func (e *DomainEvent) Excluded() string {
	if e.Origin == OriginSocket {
		return e.OriginConnID
	}
	return ""
}

// NewSocketEvent 由某条连接的动作产生，广播时排除该连接
func NewSocketEvent(t EventType, room authz.Room, originatorID, connID string, payload any) (DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, errs.ErrInternal.WrapMsg("marshal payload", "event", t, "err", err)
	}
	return DomainEvent{
		ID:           ids.GenerateString(),
		Version:      eventVersion,
		Type:         t,
		RoomID:       room.Key(),
		OriginatorID: originatorID,
		OriginConnID: connID,
		Origin:       OriginSocket,
		Payload:      raw,
		EmittedAt:    time.Now().UTC(),
	}, nil
}

// IngestEvent REST 层（HTTP / Kafka）提交的事件
type IngestEvent struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	RoomID       string          `json:"roomId"`
	OriginatorID string          `json:"originatorId"`
	Payload      json.RawMessage `json:"payload"`
}

// ParseIngest 校验并补齐字段；payload 为对象且缺少 user 时补上操作人
func ParseIngest(b []byte) (DomainEvent, error) {
	var in IngestEvent
	if err := json.Unmarshal(b, &in); err != nil {
		return DomainEvent{}, errs.ErrMalformedRequest.WrapMsg("ingest json", "err", err)
	}
	return in.toDomain()
}

func (in IngestEvent) toDomain() (DomainEvent, error) {
	if _, ok := restEvents[in.Type]; !ok {
		return DomainEvent{}, errs.ErrMalformedRequest.WrapMsg("event not allowed from rest", "type", in.Type)
	}
	room, err := authz.ParseRoom(in.RoomID)
	if err != nil {
		return DomainEvent{}, err
	}
	if strings.HasPrefix(string(in.Type), "task:") && room.Kind != authz.KindProject {
		return DomainEvent{}, errs.ErrMalformedRequest.WrapMsg("task event needs a project room", "room", in.RoomID)
	}
	if strings.HasPrefix(string(in.Type), "message:") && room.Kind != authz.KindChannel {
		return DomainEvent{}, errs.ErrMalformedRequest.WrapMsg("message event needs a channel room", "room", in.RoomID)
	}
	payload, err := withActor(in.Payload, in.OriginatorID)
	if err != nil {
		return DomainEvent{}, err
	}
	id := in.ID
	if id == "" {
		id = ids.GenerateString()
	}
	return DomainEvent{
		ID:           id,
		Version:      eventVersion,
		Type:         in.Type,
		RoomID:       room.Key(),
		OriginatorID: in.OriginatorID,
		Origin:       OriginREST,
		Payload:      payload,
		EmittedAt:    time.Now().UTC(),
	}, nil
}

func withActor(raw json.RawMessage, actor string) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		// 非对象 payload 原样转发
		if json.Valid(raw) {
			return raw, nil
		}
		return nil, errs.ErrMalformedRequest.WrapMsg("payload is not json")
	}
	if _, ok := m["user"]; ok || actor == "" {
		return raw, nil
	}
	user, _ := json.Marshal(map[string]string{"userId": actor})
	m["user"] = user
	out, err := json.Marshal(m)
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("marshal payload", "err", err)
	}
	return out, nil
}
