package common

import (
	"log"
	"strings"
)

// QuoteAsset is the settlement currency every symbol is quoted in.
const QuoteAsset = "USDT"

// Fragments a broken parse tends to leave behind; never valid as a base asset.
var invalidBases = map[string]struct{}{
	"TU": {}, "US": {}, "DT": {}, "SDT": {}, "TUT": {}, "UST": {},
}

// NormalizeSymbol turns inputs like "btc/usdt", "BTC-USDT" or "btc" into "BTCUSDT".
// Futures and spot share this notation on Binance REST. Suspicious bases fall
// back to the original input with a warning instead of failing.
func NormalizeSymbol(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("/", "", "-", "", "_", "", ":", "").Replace(s)
	base := strings.TrimSuffix(s, QuoteAsset)
	if len(base) < 2 {
		log.Printf("⚠️ symbol %q: base %q too short, keeping original", raw, base)
		return raw, false
	}
	if _, bad := invalidBases[base]; bad {
		log.Printf("⚠️ symbol %q: base %q looks like a parse fragment, keeping original", raw, base)
		return raw, false
	}
	return base + QuoteAsset, true
}

// BaseAsset strips the quote asset from a normalized symbol.
func BaseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, QuoteAsset)
}
