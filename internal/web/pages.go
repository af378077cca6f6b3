package web

import (
	"github.com/hitoshi/docdownload/internal/form"
	"github.com/hitoshi/docdownload/internal/model"
)

// ServiceContact はどのページにも表示する送信元サービスの情報。
type ServiceContact struct {
	ServiceName string
	ContactInfo string
	ContactType model.ContactType
}

// LandingPage はファイルがあることを知らせる最初のページ。
type LandingPage struct {
	ServiceContact
	ContinueURL string
}

// ConfirmEmailPage はメールアドレス確認フォームのページ。
type ConfirmEmailPage struct {
	ServiceContact
	ActionURL string
	Form      *form.EmailAddressForm
}

// DownloadPage はダウンロードリンクを表示するページ。
type DownloadPage struct {
	ServiceContact
	DownloadLink string
	FileSize     string
	FileType     string
	ExpiryDate   string
}

// FileUnavailablePage は期限切れや削除済みのファイルについて表示するページ。
type FileUnavailablePage struct {
	ServiceContact
}
