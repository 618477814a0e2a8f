package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"PPCollab/tools/errs"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 后续 handler 统一用这个 key 读取握手凭证
const (
	PPCtxAuthKey = "authorization" // string
)

const HeaderInternalKey = "X-Internal-Key"

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 "authorization"
	QueryToken                string // 浏览器 WebSocket 无法带头，默认 "token"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "Authorization",
		QueryToken:                "token",
		EnableAuthorizationBearer: true,
	}
}

// Credential 从请求中取出 bearer token，取不到返回空串
func Credential(r *http.Request, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	token := strings.TrimSpace(r.Header.Get(opts.HeaderToken))

	// 兼容 Authorization: Bearer xxx
	if token != "" && opts.EnableAuthorizationBearer {
		if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
	}
	if token == "" && opts.QueryToken != "" {
		token = strings.TrimSpace(r.URL.Query().Get(opts.QueryToken))
	}
	return token
}

// Middleware 只负责把凭证放进 context，校验交给 Authenticator
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := Credential(c.Request, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated)
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Next()
	}
}

// InternalKey 内部接口（REST 事件入口、运维查询）用共享密钥保护
func InternalKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderInternalKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}
