package rate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"histflow/logger"
)

// Signal describes how an exchange pushed back on a request.
type Signal struct {
	RateLimited bool
	IPBan       bool
	// RetryAfter is the wait the exchange asked for, zero when unknown.
	RetryAfter time.Duration
}

func (s Signal) Limited() bool { return s.RateLimited || s.IPBan }

// Classify inspects a failed call for rate limit or ban markers. HTTP status
// errors from Transport take precedence over message matching.
func Classify(exchange string, err error) Signal {
	if err == nil {
		return Signal{}
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case 418:
			return Signal{IPBan: true, RetryAfter: se.RetryAfter}
		case 429:
			return Signal{RateLimited: true, RetryAfter: se.RetryAfter}
		}
	}
	msg := err.Error()
	rl, ban := detectLimit(exchange, msg)
	sig := Signal{RateLimited: rl, IPBan: ban}
	if ban {
		if until, ok := bannedUntil(msg); ok {
			sig.RetryAfter = time.Until(until)
		}
	}
	return sig
}

// detectLimit matches each exchange's own wording for throttling.
func detectLimit(exchange, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(exchange) {
	case "binance":
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "banned")
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "too many requests") ||
			strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "code=-1003"))
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || strings.Contains(lowerMsg, "retcode=10018") ||
			(strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") ||
			strings.Contains(lowerMsg, "too many visits") || strings.Contains(lowerMsg, "retcode=10006"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// Report logs and counts a throttling signal for one request.
func Report(log *logger.Log, exchange, symbol, dataType string, sig Signal) {
	if !sig.Limited() {
		return
	}
	component := fmt.Sprintf("%s_%s", strings.ToLower(exchange), strings.ToLower(dataType))
	fields := logger.Fields{
		"exchange":    strings.ToLower(exchange),
		"symbol":      symbol,
		"type":        strings.ToLower(dataType),
		"retry_after": sig.RetryAfter.String(),
	}
	l := log.WithComponent(component)
	if sig.IPBan {
		l.LogMetric("ip_ban", 1, fields)
		l.WithFields(fields).Error("ip banned")
		return
	}
	l.LogMetric("rate_limit_exceeded", 1, fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}
