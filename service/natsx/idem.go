package natsx

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// IdemStore 记录已处理的消息 ID
type IdemStore interface {
	SeenOnce(key string) bool
}

// memIdem 单进程实现，容量和 TTL 都有上限
type memIdem struct {
	cache *expirable.LRU[string, struct{}]
}

func NewMemIdem(size int, ttl time.Duration) IdemStore {
	if size <= 0 {
		size = 8192
	}
	return &memIdem{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (mi *memIdem) SeenOnce(key string) bool {
	if _, ok := mi.cache.Get(key); ok {
		return true
	}
	mi.cache.Add(key, struct{}{})
	return false
}

// HeaderMsgID 标准头 Nats-Msg-Id
const HeaderMsgID = "Nats-Msg-Id"

func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{HeaderMsgID, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware 按消息 ID 去重；没有 ID 时用 subject+内容
func NatsxIdemMiddleware(store IdemStore) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				id = msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
			}
			if store.SeenOnce(id) {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
