package kafka

import (
	"context"
	"errors"
	"time"

	"PPCollab/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type ConsumerGroupHandler struct {
	router *Router
	log    *zap.Logger
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group setup", zap.String("member", s.MemberID()), zap.Int32("generation", s.GenerationID()))
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group cleanup")
	return nil
}

// ConsumeClaim 事件是临时广播，处理失败只记日志并提交位点，不重试
func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(session.Context(), msg)
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *ConsumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}
	handler, err := h.router.GetHandler(msg.Topic)
	if err != nil {
		h.log.Warn("no handler for topic", append(fields, zap.Error(err))...)
		return
	}
	err = safe.Call(h.log, "kafka:"+msg.Topic, func() error {
		return handler(ctx, msg.Topic, msg.Key, msg.Value)
	})
	if err != nil {
		h.log.Warn("handle message failed", append(fields, zap.Error(err))...)
	}
}

// Consumer 消费组，Run 阻塞到 ctx 结束
type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	h      *ConsumerGroupHandler
	log    *zap.Logger
}

func NewConsumer(c Config, router *Router, log *zap.Logger) (*Consumer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c.setDefaults()
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	cfg, err := BuildConfig(c)
	if err != nil {
		return nil, err
	}
	if c.EnsureTopics {
		admin, err := sarama.NewClusterAdmin(c.Brokers, cfg)
		if err != nil {
			return nil, err
		}
		err = EnsureTopics(admin, c.Topics, c.Partitions, c.ReplicationFactor, log)
		_ = admin.Close()
		if err != nil {
			return nil, err
		}
	}
	group, err := sarama.NewConsumerGroup(c.Brokers, c.GroupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		group:  group,
		topics: c.Topics,
		h:      &ConsumerGroupHandler{router: router, log: log},
		log:    log,
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("consumer group error", zap.Error(err))
		}
	}()
	for {
		if err := c.group.Consume(ctx, c.topics, c.h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Warn("consume error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error { return c.group.Close() }
