package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"PPCollab/service/auth"
	"PPCollab/tools/errs"

	"github.com/gorilla/websocket"
)

// Conn 一条传输会话。发送队列由单个写协程消费，send 从不 close，用 done 通知退出
type Conn struct {
	id       string
	identity auth.Identity
	remote   string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string

	// mu 保护 rooms/closed；加入房间全程持有，保证与 Disconnect 互斥
	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool

	createdAt  time.Time
	lastActive atomic.Int64 // unix nano
}

func NewConn(id string, identity auth.Identity, remote string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	now := time.Now()
	c := &Conn{
		id:        id,
		identity:  identity,
		remote:    remote,
		send:      make(chan []byte, queueSize),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
		createdAt: now,
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

func (c *Conn) ID() string { return c.id }
func (c *Conn) Identity() auth.Identity { return c.identity }
func (c *Conn) IdentityID() string { return c.identity.ID }
func (c *Conn) Remote() string { return c.remote }
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Done 连接关闭后可读
func (c *Conn) Done() <-chan struct{} { return c.done }

// Outbox 写协程从这里取帧
func (c *Conn) Outbox() <-chan []byte { return c.send }

func (c *Conn) Touch(now time.Time) { c.lastActive.Store(now.UnixNano()) }

func (c *Conn) LastActive() time.Time { return time.Unix(0, c.lastActive.Load()) }

// Deliver 非阻塞入队；队列满或已关闭都算投递失败
func (c *Conn) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return errs.ErrDeliveryFailure.WrapMsg("connection closed", "connId", c.id)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errs.ErrDeliveryFailure.WrapMsg("send queue full", "connId", c.id)
	}
}

// Joined 当前是否在房间里
func (c *Conn) Joined(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// Rooms 已加入房间的快照
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown 标记关闭并取走房间集合，只有第一次调用拿到房间
func (c *Conn) shutdown(code int, text string) (rooms []string, first bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.closed = true
	rooms = make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		c.closeCode, c.closeText = code, text
		close(c.done)
	})
	return rooms, true
}

// CloseInfo 写协程发送 close 帧时使用
func (c *Conn) CloseInfo() (int, string) {
	select {
	case <-c.done:
		return c.closeCode, c.closeText
	default:
		return websocket.CloseNormalClosure, ""
	}
}
