package model

import (
	"errors"
	"fmt"
)

// ドキュメントAPIクライアントが返す判別可能なエラー。
// コントローラ境界でHTTPステータスへ変換する。
var (
	// ErrNotFound は鍵が誤っている・復号できない等でドキュメントを開示できないことを示す。
	// 存在の有無を漏らさないため、本物の404と区別しない。
	ErrNotFound = errors.New("document not found")

	// ErrRateLimited は上流が認証試行回数の上限に達したと応答したことを示す。
	ErrRateLimited = errors.New("too many authentication attempts")

	// ErrUpstreamTimeout は上流呼び出しがリクエストの期限内に完了しなかったことを示す。
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// ServiceLookupError はサービス情報の取得が上流でHTTPエラーになったことを表す。
// StatusCode はそのままエンドユーザーへのステータスとして使う。
type ServiceLookupError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *ServiceLookupError) Error() string {
	return fmt.Sprintf("service lookup failed with status %d", e.StatusCode)
}

// UpstreamError は上流が想定外のステータスや形式で応答したことを表す。
// エンドユーザーには500として返す。
type UpstreamError struct {
	Op         string
	StatusCode int // トランスポートエラーの場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: upstream error (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: unexpected upstream status %d", e.Op, e.StatusCode)
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
