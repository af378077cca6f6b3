package formatting

import (
	"time"
)

const (
	// weekdayWindow 以内に期限が来る場合は曜日付きで表示する。
	weekdayWindow = 30 * 24 * time.Hour

	expiryLayoutWithWeekday = "Monday 02 January 2006"
	expiryLayout            = "02 January 2006"
)

// availableUntilLayouts は上流が返し得る available_until の形式。
var availableUntilLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseAvailableUntil は available_until を日付として解釈する。
// 時刻部分は捨て、UTCの0時に正規化する。
func ParseAvailableUntil(s string) (time.Time, bool) {
	for _, layout := range availableUntilLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// HasExpired は保持期限 availableUntil が today より前であればtrueを返す。
// 期限当日はまだ有効。解釈できない値は期限切れとして扱う。
func HasExpired(availableUntil string, today time.Time) bool {
	expiry, ok := ParseAvailableUntil(availableUntil)
	if !ok {
		return true
	}
	return expiry.Before(dateOnly(today))
}

// FormatExpiryDate は保持期限を表示用の文字列に変換する。
// 30日以内であれば曜日を付ける（例: "Tuesday 20 October 2026"）。
// 解釈できない値はそのまま返す。
func FormatExpiryDate(availableUntil string, today time.Time) string {
	expiry, ok := ParseAvailableUntil(availableUntil)
	if !ok {
		return availableUntil
	}

	if expiry.Sub(dateOnly(today)) <= weekdayWindow {
		return expiry.Format(expiryLayoutWithWeekday)
	}
	return expiry.Format(expiryLayout)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
