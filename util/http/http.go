package http

import (
	"context"
	"fmt"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次出站请求
//
// Body 支持 nil、io.Reader、[]byte，其余类型按 JSON 序列化。
// Response 为 *[]byte 时写入原始响应体，其余非 nil 值按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
	// MaxBodyBytes 限制响应体大小，<= 0 表示不限制
	MaxBodyBytes int64

	// StatusCode 请求完成后回填
	StatusCode int
}

// StatusError 服务端返回非 2xx 状态码
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.StatusCode, e.Body)
}
