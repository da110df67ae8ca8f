package rate

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned by Transport for responses that signal throttling
// (429, 418) or a server side failure (5xx).
type StatusError struct {
	Exchange   string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d: %s", e.Exchange, e.StatusCode, e.Body)
}

// Transport records the weight headers of every response and turns
// throttling and 5xx responses into a *StatusError the retry policy can see
// through the SDK's own error wrapping.
type Transport struct {
	Exchange string
	Base     http.RoundTripper
}

func NewTransport(exchange string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Exchange: strings.ToLower(exchange), Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	switch t.Exchange {
	case "binance":
		reportBinanceWeight(resp.Header)
	case "bybit":
		reportBybitWeight(resp.Header)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{
			Exchange:   t.Exchange,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

func parseHeaderInt(h http.Header, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
