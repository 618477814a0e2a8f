package natsx

import (
	"context"

	"PPCollab/tools/errs"

	"github.com/nats-io/nats.go"
)

var errNotReady = errs.New("nats manager not initialized")

// NatsManager 统一门面：对外只暴露这一个对象来用
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

// NewNatsManager 初始化
func NewNatsManager(cfg NatsxConfig, middlewares []NatsxMiddleware, hooks ...nats.Option) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg, hooks...)
	if err != nil {
		return nil, err
	}
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}, nil
}

// Close 释放资源（优雅关闭订阅与连接）
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// RegisterRoute 注册业务路由
func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if m == nil || m.client == nil {
		return errNotReady
	}
	return m.client.RegisterRoute(r)
}

func (m *NatsManager) Publish(ctx context.Context, biz, subject string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return errNotReady
	}
	return m.producer.Publish(ctx, biz, subject, data, hdr)
}

func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if m == nil || m.consumer == nil {
		return errNotReady
	}
	return m.consumer.Subscribe(biz, h)
}

func (m *NatsManager) Connected() bool {
	return m != nil && m.client != nil && m.client.Connected()
}
