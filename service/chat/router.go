package chat

import (
	"context"
	"sync"

	"PPCollab/service/authz"
	"PPCollab/tools/errs"
)

// Effect 处理器的输出，由 Gateway 统一执行
type Effect interface{ effect() }

// JoinRoom 授权已通过的加入
type JoinRoom struct{ Room authz.Room }

type LeaveRoom struct{ Room authz.Room }

// Broadcast 发布领域事件（本地 + 跨实例）
type Broadcast struct{ Event DomainEvent }

func (JoinRoom) effect()  {}
func (LeaveRoom) effect() {}
func (Broadcast) effect() {}

// Handler 一种上行事件的处理：读 Context、解析帧、返回 effects，不直接改状态
type Handler interface {
	Event() EventType
	Handle(ctx context.Context, hc *Context, f *Frame) ([]Effect, error)
}

// AlwaysAcker 即使客户端没带 ackId 也回 ack（join/leave）
type AlwaysAcker interface {
	AlwaysAck() bool
}

// HandlerFunc 函数适配
type HandlerFunc struct {
	Name EventType
	Fn   func(ctx context.Context, hc *Context, f *Frame) ([]Effect, error)
	Ack  bool
}

func (h HandlerFunc) Event() EventType { return h.Name }

func (h HandlerFunc) Handle(ctx context.Context, hc *Context, f *Frame) ([]Effect, error) {
	return h.Fn(ctx, hc, f)
}

func (h HandlerFunc) AlwaysAck() bool { return h.Ack }

// Router 事件名 -> Handler
type Router struct {
	mu       sync.RWMutex
	handlers map[EventType]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[EventType]Handler)}
}

// Register 重复注册会覆盖
func (r *Router) Register(hs ...Handler) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		r.handlers[h.Event()] = h
	}
	return r
}

func (r *Router) Get(event EventType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[event]
	if !ok {
		return nil, errs.ErrMalformedRequest.WrapMsg("unknown event", "event", event)
	}
	return h, nil
}

func (r *Router) Events() []EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventType, 0, len(r.handlers))
	for e := range r.handlers {
		out = append(out, e)
	}
	return out
}

// Context 处理器可见的连接状态和服务
type Context struct {
	conn *Conn
	gw   *Gateway
}

func (hc *Context) Conn() *Conn { return hc.conn }

// Joined 加入时已授权，之后的事件不再重新鉴权
func (hc *Context) Joined(room authz.Room) bool { return hc.conn.Joined(room.Key()) }

// RequireJoined 未加入房间时返回 not authorized
func (hc *Context) RequireJoined(room authz.Room) error {
	if hc.Joined(room) {
		return nil
	}
	return errs.ErrNotMember.WrapMsg("room not joined", "room", room.Key(), "connId", hc.conn.ID())
}

// Authorize 加入前的授权检查
func (hc *Context) Authorize(ctx context.Context, room authz.Room) error {
	return hc.gw.authorize(ctx, hc.conn, room)
}

// ShouldEmit 临时信号节流
func (hc *Context) ShouldEmit(room authz.Room) bool {
	return hc.gw.shouldEmit(hc.conn, room)
}

// NewEvent 以当前连接为发起方构造事件
func (hc *Context) NewEvent(t EventType, room authz.Room, payload any) (DomainEvent, error) {
	return NewSocketEvent(t, room, hc.conn.IdentityID(), hc.conn.ID(), payload)
}
