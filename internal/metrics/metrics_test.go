package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(requests.WithLabelValues("binance", "price", "succeeded"))
	RecordRequest("binance", "price", "succeeded")
	after := testutil.ToFloat64(requests.WithLabelValues("binance", "price", "succeeded"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestAddRows(t *testing.T) {
	before := testutil.ToFloat64(rows.WithLabelValues("bybit", "funding_rate"))
	AddRows("bybit", "funding_rate", 3)
	if got := testutil.ToFloat64(rows.WithLabelValues("bybit", "funding_rate")) - before; got != 3 {
		t.Fatalf("expected 3 more rows, got %v", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	RecordAttempt("bybit", "ok")
	SetUsedWeight("binance", 42)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"histflow_http_attempts_total", `histflow_used_weight{exchange="binance"} 42`} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
