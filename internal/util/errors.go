package util

import (
	"errors"
	"net/http"
)

// 提交评测子系统的错误分类，下层用 fmt.Errorf("%w: ...") 包装后向上传递
var (
	ErrValidation               = errors.New("validation error")
	ErrNotFound                 = errors.New("not found")
	ErrRateLimited              = errors.New("inference admission rejected")
	ErrProviderRateLimited      = errors.New("inference provider rate limited")
	ErrQuotaExceeded            = errors.New("inference provider quota exceeded")
	ErrProviderError            = errors.New("inference provider error")
	ErrEmptyOrMalformedResponse = errors.New("empty or malformed inference response")
	ErrTimeout                  = errors.New("inference timeout")
	ErrStoreUnavailable         = errors.New("store unavailable")
	ErrInconsistentState        = errors.New("inconsistent progress state")
)

type errorClass struct {
	err       error
	kind      string
	status    int
	retryable bool
}

var errorClasses = []errorClass{
	{ErrValidation, "validation_error", http.StatusBadRequest, false},
	{ErrNotFound, "not_found", http.StatusNotFound, false},
	{ErrRateLimited, "rate_limited", http.StatusTooManyRequests, true},
	{ErrProviderRateLimited, "provider_rate_limited", http.StatusTooManyRequests, true},
	{ErrQuotaExceeded, "quota_exceeded", http.StatusTooManyRequests, false},
	{ErrProviderError, "provider_error", http.StatusBadGateway, false},
	{ErrEmptyOrMalformedResponse, "empty_or_malformed_response", http.StatusBadGateway, false},
	{ErrTimeout, "timeout", http.StatusGatewayTimeout, true},
	{ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable, true},
	{ErrInconsistentState, "inconsistent_state", http.StatusInternalServerError, false},
}

func classify(err error) (errorClass, bool) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return errorClass{}, false
}

// ErrorKind 返回错误的稳定分类名，未分类错误为 "internal"
func ErrorKind(err error) string {
	if c, ok := classify(err); ok {
		return c.kind
	}
	return "internal"
}

// IsRetryable 调用方可以稍后重试的瞬时错误
func IsRetryable(err error) bool {
	c, ok := classify(err)
	return ok && c.retryable
}

func statusFor(err error) int {
	if c, ok := classify(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}
