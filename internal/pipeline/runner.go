// Package pipeline turns fetch requests into artifacts. FetchSingleSymbol
// fans one symbol out over exchanges and data types on a bounded worker
// pool; FetchAllCommonSymbols walks every symbol the exchanges share.
package pipeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"histflow/config"
	"histflow/logger"
	"histflow/reader"
	"histflow/reader/binance"
	"histflow/reader/bybit"
	"histflow/writer"
)

// Runner owns the exchange clients and the artifact writer for one process.
type Runner struct {
	cfg      *config.Config
	fetchers map[string]reader.Fetcher
	writer   *writer.Writer
	log      *logger.Log

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetchers builds a client for every supported exchange.
func NewFetchers(cfg *config.Config) map[string]reader.Fetcher {
	return map[string]reader.Fetcher{
		binance.Name: binance.NewReader(cfg),
		bybit.Name:   bybit.NewReader(cfg),
	}
}

// NewRunner wires fetchers and w. When w is nil a local-only writer is
// built from cfg.Writer.
func NewRunner(cfg *config.Config, fetchers map[string]reader.Fetcher, w *writer.Writer) *Runner {
	if w == nil {
		w = writer.New(cfg.Writer, nil)
	}
	return &Runner{
		cfg:      cfg,
		fetchers: fetchers,
		writer:   w,
		log:      logger.GetLogger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Exchanges lists the configured clients by name.
func (r *Runner) Exchanges() []string {
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Runner) fetcher(name string) (reader.Fetcher, bool) {
	f, ok := r.fetchers[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
