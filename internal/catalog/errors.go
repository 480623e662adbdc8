package catalog

import (
	"fmt"
	"net/http"
)

// NetworkErrorKind 区分连接失败、超时与非 2xx 响应。
type NetworkErrorKind string

const (
	KindConnect NetworkErrorKind = "connect"
	KindTimeout NetworkErrorKind = "timeout"
	KindStatus  NetworkErrorKind = "status"
)

// NetworkError 描述一次失败的上游请求。客户端不做重试，由调用方决定。
type NetworkError struct {
	Kind       NetworkErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError 表示响应成功但正文无法解析。
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
