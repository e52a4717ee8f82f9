package middleware

import (
	"net/http"

	"clobex.com/pkg/common"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const CodeTooManyRequests = 1003001

// RateLimit 每个客户端 IP 在每条路由上单独一个令牌桶
func RateLimit(store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if store.Allow(c.ClientIP() + " " + c.Request.Method + " " + route) {
			c.Next()
			return
		}
		metrics.RateLimitBlockTotal.WithLabelValues(route).Inc()
		logger.Debug(c.Request.Context(), "http rate limited",
			zap.String("ip", c.ClientIP()), zap.String("route", route))
		common.Fail(c, http.StatusTooManyRequests, CodeTooManyRequests, "too many requests")
		c.Abort()
	}
}
