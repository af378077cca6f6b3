package formatting

import (
	"testing"
	"time"
)

var testToday = time.Date(2026, time.October, 16, 15, 30, 0, 0, time.UTC)

func TestFormatExpiryDate(t *testing.T) {
	tests := []struct {
		name           string
		availableUntil string
		want           string
	}{
		{"当日は曜日付き", "2026-10-16", "Friday 16 October 2026"},
		{"5日後は曜日付き", "2026-10-21", "Wednesday 21 October 2026"},
		{"30日後までは曜日付き", "2026-11-15", "Sunday 15 November 2026"},
		{"31日後は曜日なし", "2026-11-16", "16 November 2026"},
		{"RFC3339も受け付ける", "2026-10-21T10:00:00Z", "Wednesday 21 October 2026"},
		{"解釈できない値はそのまま", "next tuesday", "next tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatExpiryDate(tt.availableUntil, testToday); got != tt.want {
				t.Errorf("FormatExpiryDate(%q) = %q, want %q", tt.availableUntil, got, tt.want)
			}
		})
	}
}

func TestHasExpired(t *testing.T) {
	tests := []struct {
		name           string
		availableUntil string
		want           bool
	}{
		{"昨日は期限切れ", "2026-10-15", true},
		{"当日はまだ有効", "2026-10-16", false},
		{"未来は有効", "2026-10-23", false},
		{"解釈できない値は期限切れ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasExpired(tt.availableUntil, testToday); got != tt.want {
				t.Errorf("HasExpired(%q) = %v, want %v", tt.availableUntil, got, tt.want)
			}
		})
	}
}
