package models

// RequestInfo 存储了关于 HTTP 请求的上下文信息，作为访问日志的 request_info 字段。
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMs  int64  `json:"latency_ms,omitempty"`
}

// ErrorInfo 存储了关于错误的结构化信息，作为日志的 error 字段。
type ErrorInfo struct {
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`        // 错误的类型，例如 "not_found", "generation_failed"
	StatusCode int    `json:"status_code,omitempty"` // 相关的HTTP状态码
}
