package reader

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"histflow/config"
	"histflow/internal/metrics"
	ratemetrics "histflow/internal/metrics/rate"
	"histflow/logger"
	"histflow/models"
	"histflow/processor"
)

// FundingUnit sizes funding windows. No supported exchange settles more
// often than hourly, so limit×1h windows never overflow a page.
const FundingUnit = time.Hour

// Page is one response mapped to rows.
type Page struct {
	Rows []models.Row
	// Cursor is the raw timestamp of the newest row before any flooring.
	// Zero means the newest row time is used.
	Cursor time.Time
}

// PageFunc fetches one window. Rows may come back in any order.
type PageFunc func(ctx context.Context, w models.Window, limit int) (Page, error)

// PageSpec describes how to walk a range for one request.
type PageSpec struct {
	Symbol   string
	DataType models.DataType
	Range    models.TimeRange
	Limit    int
	// Unit×Limit is the window length.
	Unit time.Duration
	// Step is added to the newest timestamp to get the next window start.
	Step time.Duration
}

// CandleSpec is the spec for interval sampled data types.
func CandleSpec(symbol string, dt models.DataType, tr models.TimeRange, iv models.Interval, limit int) PageSpec {
	return PageSpec{Symbol: symbol, DataType: dt, Range: tr, Limit: limit, Unit: iv.Duration(), Step: iv.Duration()}
}

// FundingSpec walks funding history by the last returned event.
func FundingSpec(symbol string, tr models.TimeRange, limit int) PageSpec {
	return PageSpec{Symbol: symbol, DataType: models.FundingRate, Range: tr, Limit: limit, Unit: FundingUnit, Step: time.Millisecond}
}

// Pager runs the shared pagination loop for one exchange.
type Pager struct {
	exchange string
	retry    RetryPolicy
	jitter   config.JitterConfig
	limiter  *rate.Limiter
	log      *logger.Log

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPager(exchange string, cfg config.ReaderConfig) *Pager {
	p := &Pager{
		exchange: exchange,
		retry:    NewRetryPolicy(exchange, cfg),
		jitter:   cfg.Jitter,
		log:      logger.GetLogger(),
		sleep:    sleep,
	}
	if rps := cfg.RateLimit.RequestsPerSecond; rps > 0 {
		burst := cfg.RateLimit.BurstSize
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return p
}

func (p *Pager) Exchange() string { return p.exchange }

// Paginate walks spec.Range window by window and returns the normalized
// table. An empty page ends the walk. A window that keeps failing aborts the
// whole request with a *models.RequestError naming it.
func (p *Pager) Paginate(ctx context.Context, spec PageSpec, fetch PageFunc) (*models.Table, error) {
	table := models.NewTable(spec.DataType)
	if spec.Range.Empty() {
		return table, nil
	}
	if spec.Limit < 1 || spec.Unit <= 0 || spec.Step <= 0 {
		return nil, errors.New("reader: page spec needs positive limit, unit and step")
	}

	log := p.log.WithComponent(p.exchange + "_reader").WithFields(logger.Fields{
		"symbol":    spec.Symbol,
		"data_type": string(spec.DataType),
		"range":     spec.Range.String(),
	})

	last := spec.Range.End.Add(-time.Millisecond)
	span := spec.Unit * time.Duration(spec.Limit)
	cursor := spec.Range.Start
	pages := 0

	for !cursor.After(last) {
		if pages > 0 {
			if err := p.pause(ctx); err != nil {
				return nil, err
			}
		}

		w := models.Window{Start: cursor, End: cursor.Add(span - time.Millisecond)}
		if w.End.After(last) {
			w.End = last
		}

		start := time.Now()
		page, attempts, err := Retry(ctx, p.retry, func(a Attempt) {
			p.onRetry(log, spec, w, a)
		}, func(ctx context.Context) (Page, error) {
			if err := p.wait(ctx); err != nil {
				return Page{}, err
			}
			return fetch(ctx, w, spec.Limit)
		})
		p.countAttempts(attempts, err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &models.RequestError{
				Exchange: p.exchange,
				Symbol:   spec.Symbol,
				DataType: spec.DataType,
				Window:   w,
				Attempts: attempts,
				Err:      err,
			}
		}
		pages++

		logger.LogPerformanceEntry(log, p.exchange+"_reader", "fetch_page", time.Since(start), logger.Fields{
			"window":   w.String(),
			"rows":     len(page.Rows),
			"attempts": attempts,
		})

		if len(page.Rows) == 0 {
			log.WithField("window", w.String()).Debug("empty page, no further data")
			break
		}

		sort.SliceStable(page.Rows, func(i, j int) bool { return page.Rows[i].Time.Before(page.Rows[j].Time) })
		table.Append(page.Rows...)

		newest := page.Cursor
		if newest.IsZero() {
			newest = page.Rows[len(page.Rows)-1].Time
		}
		next := newest.Add(spec.Step)
		if !next.After(cursor) {
			next = w.End.Add(time.Millisecond)
		}
		cursor = next
	}

	out := processor.Normalize(table, spec.Range)
	logger.LogDataFlowEntry(log, p.exchange, "table", out.Len(), string(spec.DataType))
	return out, nil
}

// Call runs a single non-paginated request, such as a symbol listing, under
// the same retry and pacing rules.
func Call[T any](ctx context.Context, p *Pager, op string, fn func(context.Context) (T, error)) (T, error) {
	log := p.log.WithComponent(p.exchange + "_reader").WithField("operation", op)
	res, attempts, err := Retry(ctx, p.retry, func(a Attempt) {
		log.WithError(a.Err).WithFields(logger.Fields{"attempt": a.Number, "wait": a.Wait.String()}).Warn("call failed, retrying")
	}, func(ctx context.Context) (T, error) {
		if err := p.wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
	p.countAttempts(attempts, err)
	if err != nil {
		var zero T
		return zero, &models.RequestError{Exchange: p.exchange, Op: op, Attempts: attempts, Err: err}
	}
	return res, nil
}

func (p *Pager) onRetry(log *logger.Entry, spec PageSpec, w models.Window, a Attempt) {
	if a.Signal.Limited() {
		ratemetrics.Report(p.log, p.exchange, spec.Symbol, string(spec.DataType), a.Signal)
	}
	log.WithError(a.Err).WithFields(logger.Fields{
		"window":  w.String(),
		"attempt": a.Number,
		"wait":    a.Wait.String(),
		"timeout": IsTimeout(a.Err),
	}).Warn("page request failed, retrying")
}

func (p *Pager) countAttempts(n int, err error) {
	for i := 1; i <= n; i++ {
		logger.IncrementAttempt(i > 1)
		switch {
		case i < n:
			metrics.RecordAttempt(p.exchange, "retry")
		case err != nil:
			metrics.RecordAttempt(p.exchange, "error")
		default:
			metrics.RecordAttempt(p.exchange, "ok")
		}
	}
}

// wait blocks on the optional token bucket.
func (p *Pager) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// pause sleeps a random duration inside the configured jitter bounds.
func (p *Pager) pause(ctx context.Context) error {
	return p.sleep(ctx, Jitter(p.jitter))
}

// Jitter draws a duration uniformly from [Min, Max].
func Jitter(j config.JitterConfig) time.Duration {
	if j.Max <= 0 {
		return 0
	}
	if j.Max <= j.Min {
		return j.Max
	}
	return j.Min + time.Duration(rand.Int63n(int64(j.Max-j.Min)+1))
}
