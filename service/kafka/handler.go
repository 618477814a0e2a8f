package kafka

import (
	"context"
	"fmt"
	"sync"
)

type MessageHandler func(ctx context.Context, topic string, key, value []byte) error

// Router topic -> handler
type Router struct {
	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]MessageHandler)}
}

func (r *Router) RegisterHandler(topic string, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = handler
}

// RegisterDefaultHandlers 多个 topic 共用同一处理逻辑
func (r *Router) RegisterDefaultHandlers(topics []string, handler MessageHandler) {
	for _, t := range topics {
		r.RegisterHandler(t, handler)
	}
}

func (r *Router) GetHandler(topic string) (MessageHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[topic]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("no handler registered for topic: %s", topic)
}

func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
