package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindChainUnavailable
)

// Error 带分类的业务错误。Validation/Authorization/NotFound/Conflict/
// InvalidTransition 属于客户端需要修正请求的错误，按原样返回；
// ChainUnavailable 属于基础设施抖动，调用方带退避重试，重试耗尽后按5xx返回。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation 参数格式错误
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// Authorization 操作者不具备实体存储身份要求的角色
func Authorization(format string, args ...interface{}) *Error {
	return newf(KindAuthorization, format, args...)
}

// NotFound 实体不存在
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

// Conflict 唯一约束冲突（如重复申请）
func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// InvalidTransition 状态机拒绝该转换，实体保持不变
func InvalidTransition(format string, args ...interface{}) *Error {
	return newf(KindInvalidTransition, format, args...)
}

// ChainUnavailable 链网关超时或出错，不代表底层交易失败
func ChainUnavailable(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindChainUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 提取错误分类，非业务错误返回0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is 判断错误是否属于指定分类
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 错误分类到HTTP状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindChainUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
