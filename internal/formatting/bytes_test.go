package formatting

import "testing"

func TestBytesToPrettyFileSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"0バイトは最小値0.1KB", 0, "0.1KB"},
		{"1バイトも最小値0.1KB", 1, "0.1KB"},
		{"1KB", 1024, "1KB"},
		{"MB閾値の直前はKB", 52428, "51.2KB"},
		{"MB閾値以上はMB", 52429, "0.1MB"},
		{"1MBちょうど", 1048576, "1MB"},
		{"小数第1位に丸める", 712099, "0.7MB"},
		{"大きなファイル", 1923823, "1.8MB"},
		{"負の値は0として扱う", -10, "0.1KB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BytesToPrettyFileSize(tt.bytes); got != tt.want {
				t.Errorf("BytesToPrettyFileSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}
