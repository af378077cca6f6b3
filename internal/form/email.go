// Package form は確認画面で受け付けるフォーム入力の検証を提供する。
// クライアント側の検証と同じ規則をサーバー側でも必ず適用する。
package form

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

const (
	// EmailAddressField はメールアドレス入力欄のフォーム名。
	EmailAddressField = "email_address"

	// MessageEmailRequired は未入力の場合のエラーメッセージ。
	MessageEmailRequired = "Enter your email address"
	// MessageEmailInvalid は形式が不正な場合のエラーメッセージ。
	MessageEmailInvalid = "Not a valid email address"

	maxEmailLength    = 320
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// EmailPattern はローカル部に使える文字を列挙したメールアドレスの簡易パターン。
// 1番目のサブマッチがドメイン部。連絡先の分類でも同じパターンを使う。
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~\-]+@([^.@][^@\s]+)$`)

var (
	hostnameLabel = regexp.MustCompile(`(?i)^(xn|[a-z0-9]+)(-?-[a-z0-9]+)*$`)
	tldLabel      = regexp.MustCompile(`(?i)^([a-z]{2,63}|xn--([a-z0-9]+-)*[a-z0-9]+)$`)
)

// obscureWhitespace は unicode.IsSpace では空白と判定されないが入力に紛れ込みやすい文字。
var obscureWhitespace = []rune{'\u180e', '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff'}

// EmailAddressForm はメールアドレス確認フォームの入力値と検証結果を保持する。
//
// FieldError は入力値そのものが不正な場合のエラーで、入力欄とサマリーの両方に表示する。
// FormErrors は入力値は正しい形式だが受け付けられなかった場合のエラーで、サマリーにのみ表示する。
type EmailAddressForm struct {
	EmailAddress string
	FieldError   string
	FormErrors   []string
}

// NewEmailAddressForm はPOSTされたフォームから入力値を読み取る。
// 前後の空白は取り除く。
func NewEmailAddressForm(r *http.Request) *EmailAddressForm {
	return &EmailAddressForm{
		EmailAddress: StripAllWhitespace(r.PostFormValue(EmailAddressField)),
	}
}

// Validate は入力値を検証し、問題がなければtrueを返す。
func (f *EmailAddressForm) Validate() bool {
	f.FieldError = ""

	if f.EmailAddress == "" {
		f.FieldError = MessageEmailRequired
		return false
	}

	if !IsValidEmailAddress(f.EmailAddress) {
		f.FieldError = MessageEmailInvalid
		return false
	}

	return true
}

// AddFormError はサマリーにのみ表示するエラーを追加する。
func (f *EmailAddressForm) AddFormError(msg string) {
	f.FormErrors = append(f.FormErrors, msg)
}

// HasErrors は何らかのエラーがあればtrueを返す。
func (f *EmailAddressForm) HasErrors() bool {
	return f.FieldError != "" || len(f.FormErrors) > 0
}

// ErrorSummary はエラーサマリーに並べるメッセージを返す。
func (f *EmailAddressForm) ErrorSummary() []string {
	var msgs []string
	if f.FieldError != "" {
		msgs = append(msgs, f.FieldError)
	}
	return append(msgs, f.FormErrors...)
}

// IsValidEmailAddress はメールアドレスとして受け付けられる形式かを判定する。
// ドメイン部はIDNA変換した上でラベルごとに検証する。
func IsValidEmailAddress(address string) bool {
	address = removeObscureWhitespace(strings.TrimSpace(address))

	match := EmailPattern.FindStringSubmatch(address)
	if match == nil {
		return false
	}
	if len(address) > maxEmailLength || strings.Contains(address, "..") {
		return false
	}

	hostname, err := idna.Lookup.ToASCII(match[1])
	if err != nil {
		return false
	}

	labels := strings.Split(hostname, ".")
	if len(hostname) > maxHostnameLength || len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLength || !hostnameLabel.MatchString(label) {
			return false
		}
	}

	return tldLabel.MatchString(labels[len(labels)-1])
}

// StripAllWhitespace は前後の空白（ゼロ幅文字を含む）を取り除く。
func StripAllWhitespace(s string) string {
	return strings.TrimFunc(s, isWhitespace)
}

func removeObscureWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		for _, ws := range obscureWhitespace {
			if r == ws {
				return -1
			}
		}
		return r
	}, s)
}

func isWhitespace(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	for _, ws := range obscureWhitespace {
		if r == ws {
			return true
		}
	}
	return false
}
