package docapi

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// onwardHeaderNames は受信リクエストから上流へ引き継ぐトレース関連ヘッダー。
var onwardHeaderNames = []string{
	"X-B3-TraceId",
	"X-B3-SpanId",
	"X-B3-ParentSpanId",
	"X-B3-Sampled",
	"X-Request-Id",
	"Traceparent",
	"Tracestate",
}

// OnwardHeaders は受信リクエストから上流へ転送すべきヘッダーを取り出す。
// ハンドラーはリクエストごとに1回呼び出し、結果を各クライアント呼び出しに渡す。
func OnwardHeaders(r *http.Request) http.Header {
	h := make(http.Header)
	for _, name := range onwardHeaderNames {
		if v := r.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	// 受信ヘッダーにない場合はこのサービスで採番したリクエストIDを引き継ぐ
	if h.Get(middleware.RequestIDHeader) == "" {
		if id := middleware.GetReqID(r.Context()); id != "" {
			h.Set(middleware.RequestIDHeader, id)
		}
	}
	return h
}
