// 包 logger：对外 HTTP 请求的客户端访问日志，统一记录关键维度（方法、URL、状态、耗时）
package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// loggingTransport：包装 RoundTripper，在请求完成后记录一条访问日志
// 背景：抓取政府门户时需要留痕每次外呼，便于排查封禁与限速问题
type loggingTransport struct {
	base http.RoundTripper
	l    *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if err != nil {
		t.l.Warn("http_request_error",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", dur.Milliseconds(),
			"err", err,
		)
		return resp, err
	}
	t.l.Debug("http_request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"bytes", resp.ContentLength,
		"duration_ms", dur.Milliseconds(),
	)
	return resp, nil
}

// NewHTTPClient：返回带访问日志的 HTTP 客户端
// 约束：不读取请求体与响应体，避免性能与隐私风险；超时由调用方给定
func NewHTTPClient(l *slog.Logger, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingTransport{base: http.DefaultTransport, l: l},
	}
}
