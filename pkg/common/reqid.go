package common

import (
	"context"

	"clobex.com/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-Id"

const ginKeyRequestID = "request_id"

// NewRequestID v7 按时间有序，日志里按 id 排序就是请求先后
func NewRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// WithRequestID 同时写进 gin 和 request ctx，下游只拿 ctx 也能打出 trace_id
func WithRequestID(c *gin.Context, rid string) {
	c.Set(ginKeyRequestID, rid)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.TraceIdKey, rid))
}

func RequestID(c *gin.Context) string {
	return c.GetString(ginKeyRequestID)
}
