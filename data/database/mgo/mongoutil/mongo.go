package mongoutil

import (
	"context"
	"time"

	"PPCollab/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client 只读目录查询用的连接
type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) GetDB() *mongo.Database { return c.db }

func (c *Client) Close(ctx context.Context) error { return c.cli.Disconnect(ctx) }

func clientOptions(c *Config) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.Uri).
		SetMaxPoolSize(uint64(c.MaxPoolSize)).
		SetAppName("collab-gateway").
		SetServerSelectionTimeout(5 * time.Second)
	// 用户名单独配置时覆盖 URI 里的认证
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthSource,
		})
	}
	return opts
}

// NewMongoDB 连接并 ping，失败按退避重试 MaxRetry 次
func NewMongoDB(ctx context.Context, c *Config) (*Client, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	opts := clientOptions(c)

	var (
		cli     *mongo.Client
		err     error
		backoff = 200 * time.Millisecond
	)
	for attempt := 1; attempt <= c.MaxRetry; attempt++ {
		cli, err = connect(ctx, opts)
		if err == nil || !retryable(ctx, err) || attempt == c.MaxRetry {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errs.WrapMsg(ctx.Err(), "mongo connect canceled", "database", c.Database)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "mongo connect failed", "database", c.Database)
	}
	return &Client{cli: cli, db: cli.Database(c.Database)}, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}
