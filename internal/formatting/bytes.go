// Package formatting はテンプレート描画時に使う表示用の純粋関数を提供する。
// いずれも不正な入力に対してpanicせず、安全な既定値を返す。
package formatting

import (
	"math"
	"strconv"
)

const (
	bytesPerKB = 1024.0
	bytesPerMB = 1024.0 * 1024.0

	// mbThreshold 未満のサイズはKB表記にする（1MBの5%）。
	mbThreshold = 0.05 * bytesPerMB

	// minPrettyKB は0バイトのファイルでも表示する最小値。
	minPrettyKB = 0.1
)

// BytesToPrettyFileSize はバイト数を "51.2KB" や "1MB" のような表示文字列に変換する。
// 小数点以下は1桁に丸め、".0" は省略する。
func BytesToPrettyFileSize(n int64) string {
	if n < 0 {
		n = 0
	}

	f := float64(n)
	if f < mbThreshold {
		kb := roundToTenth(f / bytesPerKB)
		if kb < minPrettyKB {
			kb = minPrettyKB
		}
		return formatTenths(kb) + "KB"
	}

	return formatTenths(roundToTenth(f/bytesPerMB)) + "MB"
}

func roundToTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

func formatTenths(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
