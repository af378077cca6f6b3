package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hitoshi/docdownload/internal/config"
	"github.com/hitoshi/docdownload/internal/docapi"
	"github.com/hitoshi/docdownload/internal/handler"
	"github.com/hitoshi/docdownload/internal/logger"
	"github.com/hitoshi/docdownload/internal/metrics"
	"github.com/hitoshi/docdownload/internal/middleware"
	"github.com/hitoshi/docdownload/internal/security"
	"github.com/hitoshi/docdownload/internal/telemetry"
	"github.com/hitoshi/docdownload/internal/web"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、設定されたレベルでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで作り直す
	log := logger.SetupDefault(w, cfg.LogLevel)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(fmt.Sprintf("http://localhost:%s", port))
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, log)
}

// Server はワイヤリング済みのHTTPハンドラーと後始末の関数を保持する。
type Server struct {
	Handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドのgoroutineを停止する。
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// NewServer は設定から全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// regにはメトリクスを登録するレジストリを渡す。
func NewServer(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	collector := metrics.NewCollector(reg)

	// 1. 上流APIクライアント
	// トレースコンテキストを上流に伝搬するためotelhttpのTransportを使う
	httpClient := &http.Client{
		Timeout:   cfg.UpstreamTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	api := docapi.NewClient(httpClient, docapi.ClientConfig{
		APIHost:         cfg.APIHostName,
		DocumentAPIHost: cfg.DocumentDownloadAPIHostNameInternal,
		ClientID:        cfg.AdminClientUserName,
		ClientSecret:    cfg.AdminClientSecret,
	}, log, collector)

	// 2. 描画
	views, err := web.NewTemplateSet(web.Options{
		HeaderColour: cfg.HeaderColour,
		Debug:        cfg.Debug,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 3. ミドルウェア依存
	rateLimiter := middleware.NewRateLimiter(
		middleware.ConfirmRateLimiterConfig(cfg.ConfirmRateLimit),
		log,
		views.ErrorRenderer(),
	)

	trustedOrigins, err := frontendOrigins(cfg.FrontendHostName)
	if err != nil {
		rateLimiter.Stop()
		return nil, err
	}

	deps := &handler.RouterDeps{
		Logger:         log,
		DocumentAPI:    api,
		Views:          views,
		Sanitizer:      security.NewTextSanitizer(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		RateLimiter:    rateLimiter,
		CSRF: middleware.CSRFConfig{
			Enabled:        cfg.CSRFEnabled,
			SecretKey:      cfg.SecretKey,
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			TrustedOrigins: trustedOrigins,
		},
		RequestTimeout: cfg.RequestTimeout,
		Access: handler.AccessHandlerConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		APIHostName:       cfg.DocumentDownloadAPIHostName,
		SecurityPolicyURL: cfg.SecurityPolicyURL,
	}

	return &Server{
		Handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はフロントエンドのHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := NewServer(cfg, log, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           otelhttp.NewHandler(srv.Handler, telemetry.DefaultServiceName),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-errCh

	log.Info("HTTP server stopped gracefully")
	return nil
}

// frontendOrigins はCSRF検証で信頼するOriginのホストを返す。
// フロントエンドのホストが未設定の場合は同一オリジンのみを許可する。
func frontendOrigins(frontendHost string) ([]string, error) {
	if frontendHost == "" {
		return nil, nil
	}
	u, err := url.Parse(frontendHost)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid frontend host name %q", frontendHost)
	}
	return []string{u.Host}, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /_status エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/_status")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
