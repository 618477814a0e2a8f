package chat

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus 进程内 backbone，测试和单机多网关实例使用
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[*memoryBackbone]func(room string, payload []byte)
	down bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memoryBackbone]func(string, []byte))}
}

// SetDown 模拟 backbone 不可用
func (b *MemoryBus) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

// Attach 每个实例拿一个端点
func (b *MemoryBus) Attach() Backbone {
	return &memoryBackbone{bus: b}
}

type memoryBackbone struct {
	bus *MemoryBus
}

var errBusDown = errors.New("memory bus down")

func (m *memoryBackbone) Publish(_ context.Context, room string, payload []byte) error {
	m.bus.mu.RLock()
	defer m.bus.mu.RUnlock()
	if m.bus.down {
		return errBusDown
	}
	// 同步回调（包括自己），回声由 Fanout 丢弃
	for _, fn := range m.bus.subs {
		fn(room, append([]byte(nil), payload...))
	}
	return nil
}

func (m *memoryBackbone) Subscribe(_ context.Context, fn func(room string, payload []byte)) error {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	if m.bus.down {
		return errBusDown
	}
	m.bus.subs[m] = fn
	return nil
}

func (m *memoryBackbone) Close() error {
	m.bus.mu.Lock()
	delete(m.bus.subs, m)
	m.bus.mu.Unlock()
	return nil
}
