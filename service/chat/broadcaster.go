package chat

import (
	"context"

	"PPCollab/service/metrics"

	"go.uber.org/zap"
)

// Publisher 本地广播和跨实例广播共用的入口
type Publisher interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

// Broadcaster 只负责本实例的房间投递
type Broadcaster struct {
	rooms   *Rooms
	log     *zap.Logger
	metrics *metrics.Collectors
	// onDead 投递失败的订阅者异步清理
	onDead func(subID string)
}

func NewBroadcaster(rooms *Rooms, log *zap.Logger, m *metrics.Collectors, onDead func(subID string)) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{rooms: rooms, log: log, metrics: m, onDead: onDead}
}

// Publish 编码一次，按房间顺序投递。订阅者失败只记日志并安排清理，不向调用方报错
func (b *Broadcaster) Publish(_ context.Context, ev DomainEvent) error {
	frame, err := EncodeEvent(&ev)
	if err != nil {
		return err
	}
	n := b.rooms.Deliver(ev.RoomID, ev.Excluded(), frame, func(s Subscriber, derr error) {
		b.log.Warn("delivery failed",
			zap.String("room", ev.RoomID),
			zap.String("event", string(ev.Type)),
			zap.String("connId", s.ID()),
			zap.String("userId", s.IdentityID()),
			zap.Error(derr),
		)
		b.metrics.DeliveryFailed()
		if b.onDead != nil {
			go b.onDead(s.ID())
		}
	})
	b.metrics.Published(string(ev.Type), string(ev.Origin))
	b.log.Debug("published",
		zap.String("id", ev.ID),
		zap.String("room", ev.RoomID),
		zap.String("event", string(ev.Type)),
		zap.Int("delivered", n),
	)
	return nil
}
