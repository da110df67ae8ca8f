package symbols

import (
	"sort"
	"strings"
)

// bybitAliases lists Bybit linear contracts whose names differ from the
// Binance futures spelling of the same market.
var bybitAliases = map[string]string{
	"SHIB1000USDT": "1000SHIBUSDT",
}

var bybitReverse = func() map[string]string {
	m := make(map[string]string, len(bybitAliases))
	for k, v := range bybitAliases {
		m[v] = k
	}
	return m
}()

// Canonical converts an exchange specific symbol to the Binance futures
// spelling used for comparisons and file names: upper case, no separators.
func Canonical(exchange, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	sym = strings.NewReplacer("-", "", "/", "", "_", "").Replace(sym)
	if strings.EqualFold(exchange, "bybit") {
		if c, ok := bybitAliases[sym]; ok {
			return c
		}
	}
	return sym
}

// ToExchange is the inverse of Canonical.
func ToExchange(exchange, canonical string) string {
	sym := Canonical("binance", canonical)
	if strings.EqualFold(exchange, "bybit") {
		if s, ok := bybitReverse[sym]; ok {
			return s
		}
	}
	return sym
}

// Intersect returns the canonical symbols present in every list, sorted.
func Intersect(lists ...[]string) []string {
	if len(lists) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, list := range lists {
		seen := map[string]bool{}
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				counts[s]++
			}
		}
	}
	var out []string
	for s, n := range counts {
		if n == len(lists) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
