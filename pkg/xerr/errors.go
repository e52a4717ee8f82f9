package xerr

import (
	"errors"
	"fmt"
)

// Kind 错误分类，调用方据此决定重试 / 拒绝 / 告警
type Kind uint8

const (
	KindUnknown Kind = iota
	KindCapacity
	KindValidation
	KindArithmetic
	KindNotFound
	KindAuthorization
	KindPolicy
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindCapacity:
		return "capacity"
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindPolicy:
		return "policy"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// 常用错误码定义
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	RecordNotFound     = 404
	ServiceUnavailable = 503
)

type CodeError struct {
	Code int    `json:"code"`
	Kind Kind   `json:"kind"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

// Is 按错误码比较，复制出来的 CodeError 也能被 errors.Is 命中
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

// Define 声明一个带分类的具名错误，供各领域包做包级变量
func Define(kind Kind, code int, msg string) *CodeError {
	return &CodeError{Code: code, Kind: kind, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// KindOf 取错误链上第一个 CodeError 的分类
func KindOf(err error) Kind {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// CodeOf 取错误码，非 CodeError 统一当服务端错误
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case RecordNotFound:
		return "记录不存在"
	case ServiceUnavailable:
		return "服务暂不可用"
	default:
		return "未知错误"
	}
}
