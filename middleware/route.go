package middleware

import (
	midsec "PPCollab/middleware/security"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth      bool   // 需要 bearer 凭证
	InternalKey string // 非空时要求 X-Internal-Key
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	hs := make([]gin.HandlerFunc, 0, 3)
	if o.InternalKey != "" {
		hs = append(hs, midsec.InternalKey(o.InternalKey))
	}
	if o.IsAuth {
		hs = append(hs, midsec.Middleware(midsec.DefaultOptions()))
	}
	return append(hs, handler)
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
