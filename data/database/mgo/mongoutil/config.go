package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"PPCollab/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	defaultMaxPoolSize = 50
	defaultMaxRetry    = 3
)

// Config 目录库连接参数；Uri 与 Address 二选一，Uri 优先
type Config struct {
	Uri         string   `yaml:"uri"`
	Address     []string `yaml:"address"`
	Database    string   `yaml:"database"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	AuthSource  string   `yaml:"authSource"`
	MaxPoolSize int      `yaml:"maxPoolSize"`
	MaxRetry    int      `yaml:"maxRetry"`
}

// check 补默认值；Uri 为空时由 Address 拼出
func (c *Config) check() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrMalformedRequest.WrapMsg("mongo uri or address is required")
	}
	if c.Database == "" {
		return errs.ErrMalformedRequest.WrapMsg("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		c.Uri = c.buildURI()
	}
	return nil
}

// buildURI 用户名密码做转义；authSource 缺省取库名
func (c *Config) buildURI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   strings.Join(c.Address, ","),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	authSource := c.AuthSource
	if authSource == "" {
		authSource = c.Database
	}
	q := url.Values{}
	q.Set("authSource", authSource)
	q.Set("maxPoolSize", strconv.Itoa(c.MaxPoolSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// retryable 认证失败（13 Unauthorized / 18 AuthenticationFailed）和 ctx 结束都不再重试
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}
