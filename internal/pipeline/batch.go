package pipeline

import (
	"context"
	"fmt"
	"time"

	"histflow/internal/symbols"
	"histflow/logger"
	"histflow/models"
	"histflow/reader"
)

// CommonSymbols intersects the symbol lists of exchanges, restricted to
// allow when it is non-empty. Any listing failure is returned as is.
func (r *Runner) CommonSymbols(ctx context.Context, exchanges, allow []string) ([]string, error) {
	lists := make([][]string, 0, len(exchanges)+1)
	for _, ex := range exchanges {
		f, ok := r.fetcher(ex)
		if !ok {
			return nil, fmt.Errorf("%w: unknown exchange %q", models.ErrInvalidInput, ex)
		}
		list, err := f.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s symbols: %w", ex, err)
		}
		r.log.WithComponent("batch").WithFields(logger.Fields{"exchange": ex, "symbols": len(list)}).Info("listed symbols")
		lists = append(lists, list)
	}
	if len(allow) > 0 {
		canon := make([]string, 0, len(allow))
		for _, s := range allow {
			canon = append(canon, symbols.Canonical("binance", s))
		}
		lists = append(lists, canon)
	}
	return symbols.Intersect(lists...), nil
}

// FetchAllCommonSymbols fetches every data type for every symbol listed on
// all batch exchanges over the last batch.window_days days. Symbols run one
// at a time with a jitter pause after each one that hit the network. Only a
// failed symbol listing is fatal.
func (r *Runner) FetchAllCommonSymbols(ctx context.Context, outputDir string) (*BatchSummary, error) {
	start := time.Now()
	bc := r.cfg.Batch
	exchanges := bc.Exchanges
	if len(exchanges) == 0 {
		exchanges = r.Exchanges()
	}
	days := bc.WindowDays
	if days <= 0 {
		days = 30
	}
	if outputDir == "" {
		outputDir = r.cfg.Fetch.OutputDir
	}

	common, err := r.CommonSymbols(ctx, exchanges, bc.Symbols)
	if err != nil {
		return nil, err
	}

	tr := models.LastDays(r.now(), days)
	batch := &BatchSummary{Range: tr, Symbols: common}
	log := r.log.WithComponent("batch").WithFields(logger.Fields{
		"range":     tr.String(),
		"exchanges": exchanges,
	})
	log.WithField("symbols", len(common)).Info("starting batch")

	for i, sym := range common {
		if ctx.Err() != nil {
			break
		}
		_, summary, err := r.FetchSingleSymbol(ctx, SingleRequest{
			Symbol:     sym,
			StartDate:  tr.StartDate(),
			EndDate:    tr.EndDate(),
			Exchanges:  exchanges,
			Interval:   bc.Interval,
			OutputDir:  outputDir,
			MaxWorkers: r.cfg.Fetch.MaxWorkers,
		})
		batch.add(SymbolResult{Symbol: sym, Summary: summary, Err: err})
		if err != nil {
			log.WithError(err).WithField("symbol", sym).Error("symbol failed")
		}

		log.WithFields(logger.Fields{
			"symbol":   sym,
			"progress": fmt.Sprintf("%d/%d", i+1, len(common)),
		}).Info("symbol done")

		if i < len(common)-1 && summary != nil && summary.Fetched() > 0 {
			if err := r.sleep(ctx, reader.Jitter(r.cfg.Reader.Jitter)); err != nil {
				break
			}
		}
	}

	batch.Elapsed = time.Since(start)
	log.WithFields(logger.Fields{
		"symbols":   len(common),
		"processed": len(batch.Results),
		"succeeded": batch.Succeeded,
		"partial":   batch.Partial,
		"failed":    batch.Failed,
		"elapsed":   batch.Elapsed.String(),
	}).Info("batch summary")
	return batch, ctx.Err()
}
