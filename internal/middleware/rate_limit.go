package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ask-docs-go/pkg/limiter"
	"ask-docs-go/pkg/log"
)

// RateLimit 是受保护路由的外层限流闸门（general 计数器）。
// 身份优先取认证后的用户标识，匿名请求回退到客户端地址。
func RateLimit(l *limiter.FixedWindow) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := UserID(c)
		if !ok {
			identity = c.ClientIP()
		}

		allowed, err := l.Allow(c.Request.Context(), identity)
		if err != nil {
			// 计数器不可达时放行请求，只记录日志
			log.Errorf("[middleware] 限流检查失败, identity: %s, err: %v", identity, err)
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求过于频繁，请稍后重试",
				"retry_after": int(l.Window().Seconds()),
			})
			return
		}
		c.Next()
	}
}
