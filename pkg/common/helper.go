package common

import (
	"errors"
	"net/http"
	"runtime/debug"

	"clobex.com/pkg/logger"
	"clobex.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 定义http返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func FailLogged(c *gin.Context, httpStatus int, code int, msg string, err error) {
	logger.Error(c.Request.Context(), "http error",
		zap.String("request_id", RequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("biz_code", code),
		zap.String("message", msg),
		zap.Error(err),
		zap.ByteString("stack", debug.Stack()),
	)
	Fail(c, httpStatus, code, msg)
}

// FailFromErr 领域错误按 Kind 映射 HTTP 状态，biz code 就是错误码。
// 不认识的错误不透出内容，打日志带堆栈
func FailFromErr(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		FailLogged(c, status, xerr.ServerCommonError, "internal error", err)
		return
	}
	code := xerr.CodeOf(err)
	msg := err.Error()
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	if status >= http.StatusInternalServerError {
		logger.Warn(c.Request.Context(), "http unavailable",
			zap.String("request_id", RequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	Fail(c, status, code, msg)
}

func HTTPStatus(err error) int {
	switch xerr.KindOf(err) {
	case xerr.KindValidation:
		return http.StatusBadRequest
	case xerr.KindNotFound:
		return http.StatusNotFound
	case xerr.KindAuthorization:
		return http.StatusForbidden
	case xerr.KindCapacity:
		return http.StatusConflict
	case xerr.KindPolicy, xerr.KindArithmetic:
		return http.StatusUnprocessableEntity
	case xerr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest 参数解析失败
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, xerr.RequestParamsError, msg)
}
