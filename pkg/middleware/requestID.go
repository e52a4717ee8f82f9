package middleware

import (
	"clobex.com/pkg/common"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReqId 沿用调用方带来的 X-Request-Id，没有就生成一个，并挂到当前 span 上
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = common.NewRequestID()
		}
		common.WithRequestID(c, rid)
		c.Header(common.HeaderRequestID, rid)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("request_id", rid))
		c.Next()
	}
}
