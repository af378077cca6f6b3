package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// ErrorRenderer はステータスコードに対応するエラーページを書き込む関数。
// errはデバッグ表示とログ用で、nilの場合もある。
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, status int, err error)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500のエラーページを返すミドルウェアを生成する。
// renderがnilの場合はプレーンテキストで応答する。
func NewRecoveryMiddleware(logger *slog.Logger, render ErrorRenderer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				if render == nil {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				render(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
