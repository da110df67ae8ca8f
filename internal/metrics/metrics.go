// Package metrics exposes fetch counters in Prometheus format:
//
//	histflow_requests_total{exchange,data_type,outcome}
//	histflow_http_attempts_total{exchange,result}
//	histflow_rows_written_total{exchange,data_type}
//	histflow_used_weight{exchange}
//
// plus the go_* and process_* collectors. Serve publishes them on /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"histflow/logger"
)

var (
	Registry = prometheus.NewRegistry()

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histflow_requests_total",
			Help: "Fetch requests by final outcome",
		},
		[]string{"exchange", "data_type", "outcome"},
	)

	attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histflow_http_attempts_total",
			Help: "HTTP calls issued to exchanges",
		},
		[]string{"exchange", "result"},
	)

	rows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "histflow_rows_written_total",
			Help: "Rows written to artifacts",
		},
		[]string{"exchange", "data_type"},
	)

	usedWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "histflow_used_weight",
			Help: "Request weight consumed as reported by the exchange",
		},
		[]string{"exchange"},
	)
)

func init() {
	Registry.MustRegister(requests, attempts, rows, usedWeight)
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RecordRequest counts one finished fetch request.
func RecordRequest(exchange, dataType, outcome string) {
	requests.WithLabelValues(exchange, dataType, outcome).Inc()
}

// RecordAttempt counts one HTTP call; result is "ok", "retry" or "error".
func RecordAttempt(exchange, result string) {
	attempts.WithLabelValues(exchange, result).Inc()
}

func AddRows(exchange, dataType string, n int) {
	rows.WithLabelValues(exchange, dataType).Add(float64(n))
}

func SetUsedWeight(exchange string, v float64) {
	usedWeight.WithLabelValues(exchange).Set(v)
}

// Serve exposes Registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	log := logger.GetLogger().WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("serving prometheus metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
