package httpapi

import (
	"errors"
	"net/http"

	"medease-realtime/internal/aggregator"
	"medease-realtime/internal/repository"
	"medease-realtime/internal/storage"
)

// Result 统一响应包装
// - code: 2000 成功，-1 失败
// - type: success | warning | error
// - reason: 失败分类，前端据此决定提示或重试
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// 失败分类
const (
	ReasonInvalidInput = "invalid_input"
	ReasonNotFound     = "not_found"
	ReasonUnavailable  = "unavailable"
	ReasonInternal     = "internal"
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Warn 成功但带提示（例如部分集合刷新失败）
func Warn[T any](message string, result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "warning", Message: message, Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

var failureKinds = []struct {
	target error
	status int
	reason string
}{
	{repository.ErrInvalidInput, http.StatusBadRequest, ReasonInvalidInput},
	{repository.ErrNotFound, http.StatusNotFound, ReasonNotFound},
	{storage.ErrObjectNotFound, http.StatusNotFound, ReasonNotFound},
	{aggregator.ErrReminderNotFound, http.StatusNotFound, ReasonNotFound},
	{aggregator.ErrSessionClosed, http.StatusServiceUnavailable, ReasonUnavailable},
	{aggregator.ErrRegistryClosed, http.StatusServiceUnavailable, ReasonUnavailable},
}

// classify 错误映射为 HTTP 状态码与 reason，未知错误按 500 处理
func classify(err error) (int, string) {
	for _, k := range failureKinds {
		if errors.Is(err, k.target) {
			return k.status, k.reason
		}
	}
	return http.StatusInternalServerError, ReasonInternal
}

// FailErr 按错误分类构造失败响应
func FailErr(err error) (int, Result[any]) {
	status, reason := classify(err)
	return status, Result[any]{Code: ResultError, Type: "error", Message: err.Error(), Reason: reason}
}
