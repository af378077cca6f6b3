package formatting

import (
	"strings"

	"github.com/hitoshi/docdownload/internal/form"
	"github.com/hitoshi/docdownload/internal/model"
)

// AssessContactType はサービスの連絡先文字列を email / link / other に分類する。
// 判定できない入力はすべて other とする。
func AssessContactType(contactInfo string) model.ContactType {
	s := strings.TrimSpace(contactInfo)
	if form.EmailPattern.MatchString(s) {
		return model.ContactTypeEmail
	}
	if strings.HasPrefix(s, "http") {
		return model.ContactTypeLink
	}
	return model.ContactTypeOther
}
