package rate

import (
	"net/http"

	futures "github.com/adshao/go-binance/v2/futures"

	"histflow/internal/metrics"
)

// RequestWeightLimit returns the REQUEST_WEIGHT per minute limit advertised in
// exchangeInfo, or 0 when it is absent.
func RequestWeightLimit(info *futures.ExchangeInfo) int64 {
	if info == nil {
		return 0
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit
		}
	}
	return 0
}

func reportBinanceWeight(h http.Header) {
	if used, ok := parseHeaderInt(h, "X-MBX-USED-WEIGHT-1m", "X-MBX-USED-WEIGHT-1M"); ok {
		metrics.SetUsedWeight("binance", float64(used))
	}
}
