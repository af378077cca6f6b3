// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// redactedKeys はログに出力してはならない属性名。
// アクセスキー・メールアドレス・署名済みデータは秘密情報または個人情報として扱う。
var redactedKeys = map[string]bool{
	"key":           true,
	"email_address": true,
	"signed_data":   true,
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 秘密情報にあたる属性は出力前に取り除く。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: dropSecrets,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}

func dropSecrets(groups []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.Attr{}
	}
	return a
}
