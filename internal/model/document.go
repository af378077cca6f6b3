// Package model はドメインモデルを定義する。
// すべてリクエスト単位の値であり、永続化はしない。
package model

import "github.com/google/uuid"

// DocumentReference は署名付きリンクが指す1件のダウンロード試行を表す。
// Key は上流APIが発行した不透明なアクセスキーで、推測不能な秘密値として扱う。
type DocumentReference struct {
	ServiceID  uuid.UUID
	DocumentID uuid.UUID
	Key        string
}

// ServiceInfo はドキュメントを送信したサービスの表示用情報。
// リクエストごとに上流から取得し、キャッシュしない。
type ServiceInfo struct {
	Name        string
	ContactInfo string
}

// DocumentMetadata は上流の check エンドポイントが返すドキュメント情報。
type DocumentMetadata struct {
	DirectFileURL             string
	SizeInBytes               int64
	FileExtension             string
	AvailableUntil            string // YYYY-MM-DD
	RequiresEmailConfirmation bool
}

// AuthorizationGrant はメールアドレス確認に成功した場合に上流が発行する認可情報。
// SignedData はCookieとしてブラウザに渡し、CookiePath 以外へ送信されないようにする。
type AuthorizationGrant struct {
	SignedData string
	CookiePath string
}

// ContactType はサービス連絡先の種別。
type ContactType string

const (
	ContactTypeEmail ContactType = "email"
	ContactTypeLink  ContactType = "link"
	ContactTypeOther ContactType = "other"
)
