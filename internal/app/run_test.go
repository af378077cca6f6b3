package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/docdownload/internal/config"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	setTestEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServer_ServesStatusAndMetrics(t *testing.T) {
	srv := newTestServer(t, loadTestConfig(t))

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /_status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `docdownload_http_status_total{status_code="200"} 1`) {
		t.Errorf("metrics should count the status request, got:\n%s", rec.Body.String())
	}
}

func TestNewServer_LegacyRedirectUsesPublicAPIHost(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.DocumentDownloadAPIHostNameInternal = "http://internal-api"
	srv := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services/_status", nil))
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if got, want := rec.Header().Get("Location"), "http://test-doc-download-api/services/_status"; got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func TestNewServer_InvalidFrontendHost(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.FrontendHostName = "not a url"

	_, err := NewServer(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), prometheus.NewRegistry())
	if err == nil {
		t.Fatal("NewServer() should fail for an invalid frontend host")
	}
}

func TestFrontendOrigins(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		want    []string
		wantErr bool
	}{
		{"未設定", "", nil, false},
		{"ホストのみ", "https://download.example.gov.uk", []string{"download.example.gov.uk"}, false},
		{"ポート付き", "http://localhost:7001", []string{"localhost:7001"}, false},
		{"スキームなし", "download.example.gov.uk", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := frontendOrigins(tt.host)
			if (err != nil) != tt.wantErr {
				t.Fatalf("frontendOrigins(%q) error = %v, wantErr %v", tt.host, err, tt.wantErr)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("frontendOrigins(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestRunHealthcheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	if err := runHealthcheck(ok.URL); err != nil {
		t.Errorf("runHealthcheck() error = %v", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	if err := runHealthcheck(failing.URL); err == nil {
		t.Error("runHealthcheck() should fail on 500")
	}
}

// TestRunServe_ShutsDownOnCancel はコンテキストのキャンセルでサーバーが停止することを検証する。
func TestRunServe_ShutsDownOnCancel(t *testing.T) {
	cfg := loadTestConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, slog.New(slog.NewJSONHandler(&buf, nil)))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe() did not return after cancel")
	}

	if !strings.Contains(buf.String(), "HTTP server stopped gracefully") {
		t.Errorf("expected shutdown log, got %s", buf.String())
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DOCUMENT_DOWNLOAD_ENVIRONMENT", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}
