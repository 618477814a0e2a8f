package chat

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"PPCollab/service/metrics"
	"PPCollab/tools/errs"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Backbone 跨实例 pub/sub。Redis / NATS / 内存实现都满足它
type Backbone interface {
	Publish(ctx context.Context, room string, payload []byte) error
	// Subscribe 注册回调并立即返回；回调在 backbone 自己的协程里执行
	Subscribe(ctx context.Context, fn func(room string, payload []byte)) error
	Close() error
}

// envelope backbone 上的消息体，origin 用于丢弃自己的回声
type envelope struct {
	Origin string      `json:"origin"`
	Event  DomainEvent `json:"event"`
}

const dedupSize = 8192

// Fanout 包装本地 Broadcaster：先本地投递，再发到 backbone；收到其他实例的事件只做本地投递
type Fanout struct {
	local      *Broadcaster
	instanceID string
	backbone   atomic.Pointer[backboneRef]
	seen       *lru.Cache[string, struct{}]
	log        *zap.Logger
	metrics    *metrics.Collectors
}

type backboneRef struct{ Backbone }

func NewFanout(local *Broadcaster, instanceID string, log *zap.Logger, m *metrics.Collectors) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	seen, _ := lru.New[string, struct{}](dedupSize)
	return &Fanout{local: local, instanceID: instanceID, seen: seen, log: log, metrics: m}
}

func (f *Fanout) InstanceID() string { return f.instanceID }

// Multi 是否处于多实例模式
func (f *Fanout) Multi() bool { return f.backbone.Load() != nil }

// Start 订阅 backbone；不可用时退回单实例模式并告警，不影响启动
func (f *Fanout) Start(ctx context.Context, bb Backbone) {
	if bb == nil {
		f.log.Warn("no fanout backbone configured: running single-instance, events will NOT reach sockets on other instances")
		return
	}
	if err := bb.Subscribe(ctx, f.onRemote); err != nil {
		f.log.Warn("fanout backbone unavailable: falling back to single-instance mode, multi-instance delivery is DISABLED",
			zap.Error(errs.ErrBackboneUnavailable.WrapMsg("subscribe", "err", err)))
		_ = bb.Close()
		return
	}
	f.backbone.Store(&backboneRef{bb})
	f.log.Info("fanout backbone ready", zap.String("instance", f.instanceID))
}

func (f *Fanout) Publish(ctx context.Context, ev DomainEvent) error {
	if ev.ID != "" {
		f.seen.Add(f.dedupKey(f.instanceID, ev.ID), struct{}{})
	}
	if err := f.local.Publish(ctx, ev); err != nil {
		return err
	}
	ref := f.backbone.Load()
	if ref == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: f.instanceID, Event: ev})
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal envelope", "err", err)
	}
	if err := ref.Publish(ctx, ev.RoomID, payload); err != nil {
		// 本地已投递，远端丢失只告警
		f.log.Warn("fanout publish failed",
			zap.String("room", ev.RoomID),
			zap.String("id", ev.ID),
			zap.Error(errs.ErrBackboneUnavailable.WrapMsg("publish", "err", err)))
	}
	return nil
}

func (f *Fanout) onRemote(room string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		f.log.Warn("fanout bad envelope", zap.String("room", room), zap.Error(err))
		return
	}
	if env.Origin == f.instanceID {
		f.metrics.Duplicate()
		return
	}
	if env.Event.ID != "" {
		if ok, _ := f.seen.ContainsOrAdd(f.dedupKey(env.Origin, env.Event.ID), struct{}{}); ok {
			f.metrics.Duplicate()
			return
		}
	}
	if env.Event.RoomID == "" {
		env.Event.RoomID = room
	}
	// 远端事件在本实例没有发起连接，OriginConnID 不会命中本地连接
	if err := f.local.Publish(context.Background(), env.Event); err != nil {
		f.log.Warn("fanout replay failed", zap.String("room", room), zap.Error(err))
		return
	}
	f.metrics.Relayed()
}

func (f *Fanout) dedupKey(origin, id string) string { return origin + "/" + id }

// Close 关闭 backbone 连接
func (f *Fanout) Close() error {
	ref := f.backbone.Swap(nil)
	if ref == nil {
		return nil
	}
	return ref.Close()
}
