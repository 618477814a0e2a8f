package chat

import (
	"context"
	"sync"
	"time"

	"PPCollab/tools/errs"
)

// ===== 配置 =====

type ManagerConf struct {
	IdleTTL     time.Duration    // 超过该时长无心跳视为断开（一般等于 pong wait）
	SweepEvery  time.Duration    // 清理周期（如 10s）
	MaxPerUser  int              // 每用户最大连接数（<=0 不限制）
	EvictOldest bool             // 超限时是否淘汰最老连接（否则 Add 直接报错）
	Clock       func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 60 * time.Second
	}
}

var ErrTooManyConnections = errs.NewCodeError(errs.UnauthorizedError, "too many connections")

// ConnManager 本实例的连接索引：connID -> Conn，userID -> (connID -> Conn)
type ConnManager struct {
	mu     sync.RWMutex
	byID   map[string]*Conn
	byUser map[string]map[string]*Conn

	conf ManagerConf
}

func NewConnManager(conf ManagerConf) *ConnManager {
	conf.norm()
	return &ConnManager{
		byID:   make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
		conf:   conf,
	}
}

// Add 登记一条已鉴权连接；超出 MaxPerUser 时返回被挤下线的旧连接，由调用方断开
func (m *ConnManager) Add(c *Conn) (evicted []*Conn, err error) {
	if c == nil || c.ID() == "" || c.IdentityID() == "" {
		return nil, errs.ErrMalformedRequest.WrapMsg("conn/id/user empty")
	}
	c.Touch(m.conf.Clock())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[c.ID()]; exists {
		return nil, errs.ErrInternal.WrapMsg("conn id exists", "connId", c.ID())
	}

	// 先保证名额
	if m.conf.MaxPerUser > 0 {
		evicted, err = m.ensureRoomForUserLocked(c.IdentityID())
		if err != nil {
			return nil, err
		}
	}

	m.byID[c.ID()] = c
	if m.byUser[c.IdentityID()] == nil {
		m.byUser[c.IdentityID()] = make(map[string]*Conn)
	}
	m.byUser[c.IdentityID()][c.ID()] = c
	return evicted, nil
}

func (m *ConnManager) Get(id string) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byID[id]
	return c, ok
}

// Remove 从索引摘除并返回该连接；不存在返回 nil
func (m *ConnManager) Remove(id string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil
	}
	m.removeLocked(c)
	return c
}

func (m *ConnManager) removeLocked(c *Conn) {
	delete(m.byID, c.ID())
	if mm := m.byUser[c.IdentityID()]; mm != nil {
		delete(mm, c.ID())
		if len(mm) == 0 {
			delete(m.byUser, c.IdentityID())
		}
	}
}

// Heartbeat 刷新活跃时间（pong / 任意上行帧）
func (m *ConnManager) Heartbeat(id string) bool {
	m.mu.RLock()
	c, ok := m.byID[id]
	m.mu.RUnlock()
	if ok {
		c.Touch(m.conf.Clock())
	}
	return ok
}

// ListUser 列出用户在本实例的全部连接
func (m *ConnManager) ListUser(user string) []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.byUser[user]))
	for _, c := range m.byUser[user] {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) All() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// ===== 清理协程 =====

// Run 周期清理超时连接，onExpire 在锁外调用
func (m *ConnManager) Run(ctx context.Context, onExpire func(*Conn)) error {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for _, c := range m.SweepOnce(m.conf.Clock()) {
				onExpire(c)
			}
		}
	}
}

// SweepOnce 摘除 now 时刻已超时的连接并返回
func (m *ConnManager) SweepOnce(now time.Time) []*Conn {
	var expired []*Conn

	m.mu.Lock()
	for _, c := range m.byID {
		if now.Sub(c.LastActive()) > m.conf.IdleTTL {
			// 收集后统一处理，避免持锁期间关闭 socket
			expired = append(expired, c)
			m.removeLocked(c)
		}
	}
	m.mu.Unlock()
	return expired
}

// ===== 最大连接数/挤下线 =====

// 需要在持锁状态下调用（*_Locked）
func (m *ConnManager) ensureRoomForUserLocked(user string) ([]*Conn, error) {
	mm := m.byUser[user]
	if len(mm) < m.conf.MaxPerUser {
		return nil, nil
	}
	if !m.conf.EvictOldest {
		return nil, ErrTooManyConnections.WrapMsg("max per user reached", "userId", user, "max", m.conf.MaxPerUser)
	}

	var evicted []*Conn
	for len(mm) >= m.conf.MaxPerUser {
		// 选择最老的一条淘汰（CreatedAt 更早）
		var oldest *Conn
		for _, c := range mm {
			if oldest == nil || c.CreatedAt().Before(oldest.CreatedAt()) {
				oldest = c
			}
		}
		m.removeLocked(oldest)
		evicted = append(evicted, oldest)
	}
	return evicted, nil
}
