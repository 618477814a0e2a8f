package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// AllowOrigin 判断浏览器 Origin 是否在白名单；名单为空或含 "*" 时全部放行，无 Origin 头（非浏览器客户端）放行
func AllowOrigin(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
			return true
		}
	}
	return false
}

// Origin 在升级 /ws 之前做来源校验
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !AllowOrigin(allowed, c.GetHeader("Origin")) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
