package natsx

import (
	"context"
	"time"

	"PPCollab/tools/safe"

	"go.uber.org/zap"
)

// NatsxMessage 统一消息对象
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 业务处理函数
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 中间件（日志、恢复、幂等等）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 组合中间件，第一个在最外层
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RecoverMiddleware 回调 panic 时只记日志，订阅不受影响
func RecoverMiddleware(log *zap.Logger) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer safe.Recover(log, "nats:"+msg.Subject, func(perr error) { err = perr })
			return next(ctx, msg)
		}
	}
}

// LogMiddleware 处理失败记 warn，慢处理记 debug
func LogMiddleware(log *zap.Logger, slow time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			cost := time.Since(start)
			if err != nil {
				log.Warn("nats handle failed", zap.String("subject", msg.Subject), zap.Duration("cost", cost), zap.Error(err))
			} else if slow > 0 && cost > slow {
				log.Debug("nats handle slow", zap.String("subject", msg.Subject), zap.Duration("cost", cost))
			}
			return err
		}
	}
}
