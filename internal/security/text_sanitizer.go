// Package security はアップストリームから受け取った表示用テキストを無害化する。
//
// サービス名や問い合わせ先はサービス管理者が自由に入力できる値であり、
// ページに埋め込む前にbluemondayのStrictPolicyでマークアップを全て除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は表示用テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize は入力から全てのHTMLタグを取り除いたプレーンテキストを返す。
	// 出力のエスケープはテンプレート側で行うため、エンティティは復元して返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのPolicyはゴルーチンセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はStrictPolicyを持つサニタイザーを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は全タグを除去し、前後の空白を落とした文字列を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
