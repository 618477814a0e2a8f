package chat

import (
	"bytes"
	"encoding/json"

	"PPCollab/tools/errs"
)

// Frame 客户端上行帧 {"event": "...", "data": ..., "ackId": n}
type Frame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ackId,omitempty"`
}

// OutFrame 下行帧
type OutFrame struct {
	Event EventType `json:"event"`
	Data  any       `json:"data,omitempty"`
	AckID *int64    `json:"ackId,omitempty"`
}

type AckData struct {
	Success bool      `json:"success"`
	Event   EventType `json:"event,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type ErrorData struct {
	Event   EventType `json:"event"`
	Message string    `json:"message"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errs.ErrMalformedRequest.WrapMsg("empty frame")
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrMalformedRequest.WrapMsg("unmarshal frame failed", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrMalformedRequest.WrapMsg("frame without event")
	}
	return &f, nil
}

func EncodeFrame(event EventType, data any, ackID *int64) ([]byte, error) {
	b, err := json.Marshal(OutFrame{Event: event, Data: data, AckID: ackID})
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("marshal frame", "event", event, "err", err)
	}
	return b, nil
}

// EncodeEvent 领域事件 -> 下行帧，payload 原样作为 data
func EncodeEvent(ev *DomainEvent) ([]byte, error) {
	var data any
	if len(ev.Payload) > 0 {
		data = ev.Payload
	}
	return EncodeFrame(ev.Type, data, nil)
}

func BuildAck(event EventType, ackID *int64, err error) ([]byte, error) {
	a := AckData{Success: err == nil, Event: event}
	if err != nil {
		a.Error = errs.Message(err)
	}
	return EncodeFrame(EventAck, a, ackID)
}

// BuildError 只带给客户端看的短消息，detail 留在日志里
func BuildError(event EventType, err error) ([]byte, error) {
	return EncodeFrame(EventError, ErrorData{Event: event, Message: errs.Message(err)}, nil)
}
