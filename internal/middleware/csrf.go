package middleware

import (
	"crypto/sha256"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
)

const (
	// CSRFFieldName はフォームに埋め込むCSRFトークンのフィールド名。
	CSRFFieldName = "csrf_token"

	csrfCookieName = "docdownload_csrf"
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	Enabled      bool
	SecretKey    string
	CookieSecure bool
	CookieDomain string
	// TrustedOrigins はOriginヘッダーとして受け付けるホスト名（フロントエンドのホスト）。
	TrustedOrigins []string
}

// NewCSRFMiddleware はgorilla/csrfによるトークン検証ミドルウェアを返す。
// 安全なメソッドはトークンCookieを発行するだけで通過し、POSTはフォームのトークンを検証する。
// 検証失敗時はrenderに400を渡す。Enabledがfalseの場合は何もしない。
func NewCSRFMiddleware(config CSRFConfig, logger *slog.Logger, render ErrorRenderer) func(next http.Handler) http.Handler {
	if !config.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	key := sha256.Sum256([]byte(config.SecretKey))

	failure := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := csrf.FailureReason(r)
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		}
		if reason != nil {
			attrs = append(attrs, slog.String("reason", reason.Error()))
		}
		logger.Warn("CSRF validation failed", attrs...)

		if render == nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		render(w, r, http.StatusBadRequest, reason)
	})

	opts := []csrf.Option{
		csrf.CookieName(csrfCookieName),
		csrf.FieldName(CSRFFieldName),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.Secure(config.CookieSecure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(failure),
	}
	if config.CookieDomain != "" {
		opts = append(opts, csrf.Domain(config.CookieDomain))
	}
	if len(config.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(config.TrustedOrigins))
	}
	protect := csrf.Protect(key[:], opts...)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Referrer-Policy: no-referrer のページからの送信にはRefererが付かず、
			// Originは "null" になる。TLSはロードバランサーで終端するため平文扱いで検証する。
			if r.Header.Get("Origin") == "null" {
				r.Header.Del("Origin")
			}
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}
