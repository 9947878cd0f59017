// Package interval 解析交易所 K 线周期。
package interval

import (
	"strconv"
	"strings"
	"time"
)

// Parse 将 "1m"、"15m"、"4h"、"1d"、"1w"、"1M" 解析为时长；"M" 按 30 天计。
// 非法输入返回 (0, false)。
func Parse(iv string) (time.Duration, bool) {
	iv = strings.TrimSpace(iv)
	if len(iv) < 2 {
		return 0, false
	}
	unit := iv[len(iv)-1]
	n, err := strconv.Atoi(iv[:len(iv)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h', 'H':
		return time.Duration(n) * time.Hour, true
	case 'd', 'D':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w', 'W':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	case 'M':
		return time.Duration(n) * 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

var spot = map[string]struct{}{
	"1s": {}, "1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

// Supported 报告现货 K 线接口是否接受该周期。
func Supported(iv string) bool {
	_, ok := spot[strings.TrimSpace(iv)]
	return ok
}
