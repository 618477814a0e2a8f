package chat

import (
	"sort"
	"sync"
)

// Subscriber 房间里可投递的一端；*Conn 实现它，测试里用 mock
type Subscriber interface {
	ID() string
	IdentityID() string
	Deliver(frame []byte) error
}

type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
	dead bool // 已从 Rooms 摘除，持有旧指针的调用方需要重取
}

// Rooms 房间 -> 订阅者。每个房间一把锁，投递在锁内完成，保证房间内顺序
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*room)}
}

func (rs *Rooms) get(key string) *room {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.rooms[key]
}

func (rs *Rooms) getOrCreate(key string) *room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.rooms[key]
	if !ok {
		r = &room{subs: make(map[string]Subscriber)}
		rs.rooms[key] = r
	}
	return r
}

// Join 首次加入返回 true
func (rs *Rooms) Join(key string, s Subscriber) bool {
	for {
		r := rs.getOrCreate(key)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		_, exists := r.subs[s.ID()]
		r.subs[s.ID()] = s
		r.mu.Unlock()
		return !exists
	}
}

// Leave 真正移除返回 true；房间空了即回收
func (rs *Rooms) Leave(key, subID string) bool {
	r := rs.get(key)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[subID]; !ok {
		return false
	}
	delete(r.subs, subID)
	if len(r.subs) == 0 && !r.dead {
		r.dead = true
		rs.mu.Lock()
		if rs.rooms[key] == r {
			delete(rs.rooms, key)
		}
		rs.mu.Unlock()
	}
	return true
}

// Deliver 向房间内除 exclude 外的订阅者投递；单个失败不影响其他人
func (rs *Rooms) Deliver(key, exclude string, frame []byte, onFail func(Subscriber, error)) (delivered int) {
	r := rs.get(key)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.subs {
		if id == exclude {
			continue
		}
		if err := s.Deliver(frame); err != nil {
			if onFail != nil {
				onFail(s, err)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Members 房间订阅者快照，按 ID 排序
func (rs *Rooms) Members(key string) []Subscriber {
	r := rs.get(key)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (rs *Rooms) Has(key, subID string) bool {
	r := rs.get(key)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[subID]
	return ok
}

func (rs *Rooms) Stats() (rooms, subs int) {
	rs.mu.RLock()
	all := make([]*room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		all = append(all, r)
	}
	rs.mu.RUnlock()

	for _, r := range all {
		r.mu.Lock()
		subs += len(r.subs)
		r.mu.Unlock()
	}
	return len(all), subs
}
