package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/docdownload/internal/metrics"
	"github.com/hitoshi/docdownload/internal/middleware"
	"github.com/hitoshi/docdownload/internal/security"
	"github.com/hitoshi/docdownload/internal/web"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 上流API
	DocumentAPI DocumentAPI

	// 描画
	Views     *web.TemplateSet
	Sanitizer security.TextSanitizerService

	// メトリクス。MetricsHandlerがnilの場合は /metrics を公開しない。
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// ミドルウェア依存
	RateLimiter    *middleware.RateLimiter
	CSRF           middleware.CSRFConfig
	RequestTimeout time.Duration

	Access            AccessHandlerConfig
	APIHostName       string
	SecurityPolicyURL string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → SecurityHeaders → Recovery
//
// 500のページもナンスを参照するため、RecoveryはSecurityHeadersより内側に置く。
//
// ダウンロードのページ（/d/*）にはさらに Timeout → CSRF を適用し、
// メールアドレス確認フォームの送信にはクライアントIP単位のレート制限をかける。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	renderError := deps.Views.ErrorRenderer()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger, renderError))

	r.NotFound(deps.Views.ErrorHandler(http.StatusNotFound))

	statusHandler := NewStatusHandler(deps.APIHostName, deps.SecurityPolicyURL, deps.Views.ErrorHandler(http.StatusNotFound))
	accessHandler := NewAccessHandler(deps.DocumentAPI, deps.Views, deps.Sanitizer, collector, deps.Logger, deps.Access)

	// --- 監視・リダイレクト ---
	r.Get("/_status", statusHandler.Status)
	r.Get("/security.txt", statusHandler.SecurityPolicy)
	r.Get("/.well-known/security.txt", statusHandler.SecurityPolicy)
	r.Get("/services/*", statusHandler.LegacyAPIRedirect)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/static/*", web.StaticHandler("/static"))

	// --- ダウンロードのページ ---
	r.Route("/d/{serviceId}/{documentId}", func(r chi.Router) {
		r.Use(middleware.NewTimeoutMiddleware(deps.RequestTimeout))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF, deps.Logger, renderError))

		r.Get("/", accessHandler.Landing)
		r.Get("/download", accessHandler.Download)

		r.Route("/confirm-email-address", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.MiddlewareWithRenderer(accessHandler.TooManyAttempts))
			}
			r.Get("/", accessHandler.ConfirmEmailAddress)
			r.Post("/", accessHandler.ConfirmEmailAddress)
		})
	})

	return r
}
