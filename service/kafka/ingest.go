package kafka

import (
	"context"

	"PPCollab/service/chat"

	"go.uber.org/zap"
)

// Sink *chat.Gateway 实现它
type Sink interface {
	PublishFromREST(ctx context.Context, ev chat.DomainEvent) error
}

// IngestHandler 消息体与 POST /internal/events 相同；格式错误的消息直接丢弃
func IngestHandler(sink Sink, log *zap.Logger) MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, topic string, key, value []byte) error {
		ev, err := chat.ParseIngest(value)
		if err != nil {
			log.Info("drop malformed event", zap.String("topic", topic), zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		return sink.PublishFromREST(ctx, ev)
	}
}
