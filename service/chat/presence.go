package chat

import (
	"sort"
	"sync"
	"time"

	"PPCollab/service/auth"
	"PPCollab/tools/safe"

	"go.uber.org/zap"
)

// PresenceEntry (identity, room, joinedAt)，进程内派生数据，重启即丢失
type PresenceEntry struct {
	Identity auth.Identity `json:"user"`
	RoomID   string        `json:"roomId"`
	JoinedAt time.Time     `json:"joinedAt"`
}

type presenceItem struct {
	identity auth.Identity
	joinedAt time.Time
	conns    map[string]struct{}
}

// PresenceNotice 加入/离开通知；ConnID 为触发的连接，广播时排除它
type PresenceNotice struct {
	Joined   bool
	RoomID   string
	Identity auth.Identity
	ConnID   string
}

// noticeQueue 单个房间待发出的通知；draining 时由一个协程按入队顺序逐条发出
type noticeQueue struct {
	items    []PresenceNotice
	draining bool
}

// Presence 按房间记录在场身份。同一身份多条连接只在 0->1 / 1->0 时通知。
// 通知在状态变更的同一临界区内入队，同一房间的通知顺序与状态变更顺序一致
type Presence struct {
	mu      sync.Mutex
	rooms   map[string]map[string]*presenceItem // room -> identityID -> item
	pending map[string]*noticeQueue
	notify  func(PresenceNotice)
	now     func() time.Time
	log     *zap.Logger
}

func NewPresence(notify func(PresenceNotice)) *Presence {
	return &Presence{
		rooms:   make(map[string]map[string]*presenceItem),
		pending: make(map[string]*noticeQueue),
		notify:  notify,
		now:     time.Now,
	}
}

// RecordJoin 返回加入后的快照；身份首次进入房间时通知其他成员
func (p *Presence) RecordJoin(identity auth.Identity, connID, roomID string) []PresenceEntry {
	snap := p.recordJoin(identity, connID, roomID)
	p.Flush(roomID)
	return snap
}

// RecordLeave 未加入时为空操作；身份最后一条连接离开时通知剩余成员
func (p *Presence) RecordLeave(identity auth.Identity, connID, roomID string) bool {
	last := p.recordLeave(identity, connID, roomID)
	p.Flush(roomID)
	return last
}

// recordJoin 只变更状态并入队通知，调用方随后必须 Flush
func (p *Presence) recordJoin(identity auth.Identity, connID, roomID string) []PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.rooms[roomID]
	if !ok {
		members = make(map[string]*presenceItem)
		p.rooms[roomID] = members
	}
	item, ok := members[identity.ID]
	first := !ok
	if first {
		item = &presenceItem{identity: identity, joinedAt: p.now(), conns: make(map[string]struct{})}
		members[identity.ID] = item
	}
	item.conns[connID] = struct{}{}
	if first {
		p.enqueueLocked(PresenceNotice{Joined: true, RoomID: roomID, Identity: identity, ConnID: connID})
	}
	return snapshotLocked(roomID, members)
}

func (p *Presence) recordLeave(identity auth.Identity, connID, roomID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	members := p.rooms[roomID]
	item, ok := members[identity.ID]
	if !ok {
		return false
	}
	if _, ok := item.conns[connID]; !ok {
		return false
	}
	delete(item.conns, connID)
	last := len(item.conns) == 0
	if last {
		delete(members, identity.ID)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		}
		p.enqueueLocked(PresenceNotice{Joined: false, RoomID: roomID, Identity: identity, ConnID: connID})
	}
	return last
}

func (p *Presence) enqueueLocked(n PresenceNotice) {
	if p.notify == nil {
		return
	}
	q, ok := p.pending[n.RoomID]
	if !ok {
		q = &noticeQueue{}
		p.pending[n.RoomID] = q
	}
	q.items = append(q.items, n)
}

// Flush 发出房间内排队的通知。已有协程在发时直接返回，由它按序发完
func (p *Presence) Flush(roomID string) {
	p.mu.Lock()
	q, ok := p.pending[roomID]
	if !ok || q.draining {
		p.mu.Unlock()
		return
	}
	q.draining = true
	for {
		if len(q.items) == 0 {
			delete(p.pending, roomID)
			p.mu.Unlock()
			return
		}
		n := q.items[0]
		q.items = q.items[1:]
		p.mu.Unlock()

		p.emit(n)
		p.mu.Lock()
	}
}

// emit notify panic 时队列不能停在 draining 状态
func (p *Presence) emit(n PresenceNotice) {
	_ = safe.Call(p.log, "presence.notify", func() error {
		p.notify(n)
		return nil
	})
}

func (p *Presence) Snapshot(roomID string) []PresenceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return snapshotLocked(roomID, p.rooms[roomID])
}

// Count 房间在场身份数
func (p *Presence) Count(roomID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms[roomID])
}

func snapshotLocked(roomID string, members map[string]*presenceItem) []PresenceEntry {
	out := make([]PresenceEntry, 0, len(members))
	for _, it := range members {
		out = append(out, PresenceEntry{Identity: it.identity, RoomID: roomID, JoinedAt: it.joinedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Identity.ID < out[j].Identity.ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
