package natsx

import (
	"context"

	"PPCollab/tools/errs"

	"github.com/nats-io/nats.go"
)

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 发到具体 subject；biz 只用于确认路由已注册
func (p *NatsxProducer) Publish(ctx context.Context, biz, subject string, data []byte, hdr map[string]string) error {
	if _, ok := p.c.route(biz); !ok {
		return errs.New("nats route not found", "biz", biz)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	if err := p.c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish failed", "subject", subject)
	}
	return nil
}
