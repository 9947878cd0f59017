// Package symbol 处理现货交易对的规范化与拆分。
package symbol

import "strings"

// knownQuotes 按匹配优先级排列，先长后短。
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "TUSD", "BUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// Pair 是拆分后的基础币与报价币。
type Pair struct {
	Base  string
	Quote string
}

// String 返回交易所格式，例如 BTCUSDT；无法拆分时为空。
func (p Pair) String() string {
	if p.Base == "" || p.Quote == "" {
		return ""
	}
	return p.Base + p.Quote
}

// Parse 支持 BTCUSDT、btc/usdt 与 BTC/USDT:USDT 三种写法。
func Parse(raw string) Pair {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
		if base == "" || quote == "" {
			return Pair{}
		}
		return Pair{Base: base, Quote: quote}
	}
	for _, q := range knownQuotes {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return Pair{Base: base, Quote: q}
		}
	}
	return Pair{}
}

// Normalize 统一为交易所格式；无法识别报价币时仅做大写与去斜杠。
func Normalize(raw string) string {
	if s := Parse(raw).String(); s != "" {
		return s
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), "/", "")
}

// NormalizeList 规范化并去重，保留首次出现的顺序。
func NormalizeList(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s := Normalize(r)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
