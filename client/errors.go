package client

import (
	"errors"
	"fmt"
)

// 错误码常量：来自服务端错误响应的 code 字段。
// 重试策略只依赖这些机器可读编码，不解析 message 文本。
const (
	CodeJobNotFound = "job_not_found"
	CodeRateLimited = "rate_limited"
)

// APIError 服务端返回的结构化错误（非 2xx 响应）。
type APIError struct {
	Status  int    // HTTP 状态码
	Code    string // 机器可读错误码，可能为空
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d message=%s", e.Status, e.Message)
}

// IsNotFound 判断是否为"任务不存在"错误（404 或 job_not_found 编码）。
func IsNotFound(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code == CodeJobNotFound || ae.Status == 404
	}
	return false
}

// IsServerError 判断是否为服务端 5xx 错误。
func IsServerError(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status >= 500
	}
	return false
}

// IsUnauthorized 判断是否为 401，用于触发令牌刷新。
func IsUnauthorized(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == 401
	}
	return false
}
