package middleware

import (
	"net/http"
	"runtime/debug"

	"clobex.com/pkg/common"
	"clobex.com/pkg/logger"
	"clobex.com/pkg/metrics"
	"clobex.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recover handler panic 回 500，不把内部信息带给客户端。已经开始写 body 的只能断开
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			metrics.PanicsRecovered.WithLabelValues("http").Inc()
			logger.Error(c.Request.Context(), "http panic",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			common.Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, "internal error")
			c.Abort()
		}()
		c.Next()
	}
}
