package rate

import (
	"net/http"

	"histflow/internal/metrics"
)

// Bybit has used both X-Bapi-* and X-RateLimit-* header names over time.
func reportBybitWeight(h http.Header) {
	limit, ok := parseHeaderInt(h, "X-Bapi-Limit", "X-RateLimit-Limit")
	if !ok {
		return
	}
	remaining, _ := parseHeaderInt(h, "X-Bapi-Limit-Status", "X-RateLimit-Remaining")
	used := limit - remaining
	if used < 0 {
		used = 0
	}
	metrics.SetUsedWeight("bybit", float64(used))
}
