package redis

import (
	"context"
	"strings"
	"sync"

	"PPCollab/tools/errs"
	"PPCollab/tools/safe"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannelPrefix pub/sub 频道：collab:room:<roomKey>
const DefaultChannelPrefix = "collab:room:"

// RoomBackbone 基于 Redis Pub/Sub 的跨实例房间广播
type RoomBackbone struct {
	rdb    redis.UniversalClient
	prefix string
	log    *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func NewRoomBackbone(rdb redis.UniversalClient, prefix string, log *zap.Logger) *RoomBackbone {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomBackbone{rdb: rdb, prefix: prefix, log: log}
}

func (b *RoomBackbone) Channel(room string) string { return b.prefix + room }

func (b *RoomBackbone) Room(channel string) (string, bool) {
	room := strings.TrimPrefix(channel, b.prefix)
	return room, room != channel && room != ""
}

func (b *RoomBackbone) Publish(ctx context.Context, room string, payload []byte) error {
	return errs.WrapMsg(b.rdb.Publish(ctx, b.Channel(room), payload).Err(), "redis publish", "room", room)
}

// Subscribe PSUBSCRIBE <prefix>*，确认订阅成功后再返回
func (b *RoomBackbone) Subscribe(ctx context.Context, fn func(room string, payload []byte)) error {
	ps := b.rdb.PSubscribe(ctx, b.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return errs.WrapMsg(err, "redis psubscribe", "pattern", b.prefix+"*")
	}

	b.mu.Lock()
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
	b.pubsub = ps
	b.mu.Unlock()

	ch := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ch {
			room, ok := b.Room(msg.Channel)
			if !ok {
				continue
			}
			payload := []byte(msg.Payload)
			_ = safe.Call(b.log, "redis-backbone", func() error {
				fn(room, payload)
				return nil
			})
		}
	}()
	return nil
}

// Close 关闭订阅并等待消费协程退出；客户端本身由调用方关闭
func (b *RoomBackbone) Close() error {
	b.mu.Lock()
	ps := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	b.wg.Wait()
	return err
}
