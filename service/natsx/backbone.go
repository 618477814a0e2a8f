package natsx

import (
	"context"
	"strings"
	"time"

	"PPCollab/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	bizRoomFanout = "room-fanout"
	// DefaultSubjectPrefix 房间 key 直接拼在后面：collab.room.channel:abc
	DefaultSubjectPrefix = "collab.room."

	roomIdemSize = 8192
	roomIdemTTL  = 2 * time.Minute
)

// RoomBackbone 基于 NATS Core 的跨实例房间广播；每个实例都订阅全部房间
type RoomBackbone struct {
	mgr    *NatsManager
	prefix string
	log    *zap.Logger
}

// NewRoomBackbone 连接 NATS 并注册房间路由
func NewRoomBackbone(cfg NatsxConfig, prefix string, log *zap.Logger) (*RoomBackbone, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if !strings.HasSuffix(prefix, ".") {
		prefix += "."
	}
	mgr, err := NewNatsManager(cfg, roomMiddlewares(log))
	if err != nil {
		return nil, err
	}
	if err := mgr.RegisterRoute(NatsxRoute{Biz: bizRoomFanout, Subject: prefix + ">"}); err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return &RoomBackbone{mgr: mgr, prefix: prefix, log: log}, nil
}

// roomMiddlewares 重连后的重复投递按 Nats-Msg-Id 丢弃
func roomMiddlewares(log *zap.Logger) []NatsxMiddleware {
	return []NatsxMiddleware{
		RecoverMiddleware(log),
		LogMiddleware(log, 50*time.Millisecond),
		NatsxIdemMiddleware(NewMemIdem(roomIdemSize, roomIdemTTL)),
	}
}

func (b *RoomBackbone) Subject(room string) string { return b.prefix + room }

// Room subject -> 房间 key
func (b *RoomBackbone) Room(subject string) (string, bool) {
	room := strings.TrimPrefix(subject, b.prefix)
	return room, room != subject && room != ""
}

func (b *RoomBackbone) Publish(ctx context.Context, room string, payload []byte) error {
	if !b.mgr.Connected() {
		return errs.ErrBackboneUnavailable.WrapMsg("nats not connected", "room", room)
	}
	return b.mgr.Publish(ctx, bizRoomFanout, b.Subject(room), payload, map[string]string{HeaderMsgID: uuid.NewString()})
}

func (b *RoomBackbone) Subscribe(_ context.Context, fn func(room string, payload []byte)) error {
	return b.mgr.Subscribe(bizRoomFanout, func(_ context.Context, msg NatsxMessage) error {
		room, ok := b.Room(msg.Subject)
		if !ok {
			return errs.New("unexpected subject", "subject", msg.Subject)
		}
		fn(room, msg.Data)
		return nil
	})
}

func (b *RoomBackbone) Close() error { return b.mgr.Close() }
