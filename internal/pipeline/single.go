package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"histflow/internal/symbols"
	"histflow/logger"
	"histflow/models"
	"histflow/processor"
	"histflow/reader"
	"histflow/writer"
)

// SingleRequest is one symbol over a date range. Empty Exchanges or
// DataTypes select everything; zero values of the other fields fall back to
// the fetch configuration.
type SingleRequest struct {
	Symbol     string
	StartDate  string
	EndDate    string
	Exchanges  []string
	DataTypes  []string
	Interval   string
	OutputDir  string
	MaxWorkers int
}

type plan struct {
	symbol    string
	tr        models.TimeRange
	interval  models.Interval
	exchanges []string
	dataTypes []models.DataType
	dir       string
	workers   int
}

func (r *Runner) validate(req SingleRequest) (plan, error) {
	var p plan

	p.symbol = symbols.Canonical("binance", req.Symbol)
	if p.symbol == "" {
		return p, fmt.Errorf("%w: symbol is required", models.ErrInvalidInput)
	}

	tr, err := models.ParseTimeRange(req.StartDate, req.EndDate)
	if err != nil {
		return p, err
	}
	p.tr = tr

	iv := req.Interval
	if iv == "" {
		iv = r.cfg.Fetch.Interval
	}
	if p.interval, err = models.ParseInterval(iv); err != nil {
		return p, err
	}

	seen := map[string]bool{}
	for _, name := range req.Exchanges {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := r.fetcher(name); !ok {
			return p, fmt.Errorf("%w: unknown exchange %q", models.ErrInvalidInput, name)
		}
		if !seen[name] {
			seen[name] = true
			p.exchanges = append(p.exchanges, name)
		}
	}
	if len(p.exchanges) == 0 {
		p.exchanges = r.Exchanges()
	}

	seenDT := map[models.DataType]bool{}
	for _, s := range req.DataTypes {
		dt, err := models.ParseDataType(s)
		if err != nil {
			return p, err
		}
		if !seenDT[dt] {
			seenDT[dt] = true
			p.dataTypes = append(p.dataTypes, dt)
		}
	}
	if len(p.dataTypes) == 0 {
		p.dataTypes = models.AllDataTypes()
	}

	p.dir = req.OutputDir
	if p.dir == "" {
		p.dir = r.cfg.Fetch.OutputDir
	}

	p.workers = req.MaxWorkers
	if p.workers == 0 {
		p.workers = r.cfg.Fetch.MaxWorkers
	}
	if p.workers < 1 {
		return p, fmt.Errorf("%w: max workers must be at least 1, got %d", models.ErrInvalidInput, p.workers)
	}
	return p, nil
}

type job struct {
	slot int
	req  models.FetchRequest
	// hit is a partial cache answer to extend, nil for a full fetch.
	hit *writer.Hit
}

// FetchSingleSymbol runs every exchange and data type for one symbol and
// returns the tables of the requests that did not fail. Invalid input fails
// before any network call. A failed request never stops its siblings; the
// returned error is non-nil only for invalid input or a cancelled ctx.
func (r *Runner) FetchSingleSymbol(ctx context.Context, req SingleRequest) (Results, *Summary, error) {
	p, err := r.validate(req)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	log := r.log.WithComponent("pipeline").WithFields(logger.Fields{
		"symbol":   p.symbol,
		"range":    p.tr.String(),
		"interval": string(p.interval),
	})
	log.WithFields(logger.Fields{
		"exchanges":  strings.Join(p.exchanges, ","),
		"data_types": len(p.dataTypes),
		"workers":    p.workers,
	}).Info("fetching symbol")

	cache := writer.NewCache(p.dir, r.cfg.Cache.Partial)
	summary := &Summary{Symbol: p.symbol, Range: p.tr, Interval: p.interval}
	tables := make([]*models.Table, 0, len(p.exchanges)*len(p.dataTypes))
	var jobs []job

	for _, ex := range p.exchanges {
		f, _ := r.fetcher(ex)
		for _, dt := range p.dataTypes {
			fr := models.FetchRequest{Exchange: ex, Symbol: p.symbol, DataType: dt, Interval: p.interval, Range: p.tr}
			slot := len(summary.Requests)
			summary.Requests = append(summary.Requests, RequestSummary{Request: fr})
			tables = append(tables, nil)

			if dt.UsesInterval() && !f.SupportsInterval(p.interval) {
				summary.Requests[slot].Outcome = Failed
				summary.Requests[slot].Err = fmt.Errorf("%w: %s does not offer interval %s", models.ErrInvalidInput, ex, p.interval)
				continue
			}

			hit, err := cache.Lookup(fr)
			if err != nil {
				log.WithError(err).WithField("data_type", string(dt)).Warn("unreadable cache artifact, fetching again")
				hit = nil
			}
			if hit.Complete() {
				summary.Requests[slot].Outcome = Cached
				summary.Requests[slot].Rows = hit.Table.Len()
				summary.Requests[slot].Path = hit.Path
				tables[slot] = hit.Table
				continue
			}
			jobs = append(jobs, job{slot: slot, req: fr, hit: hit})
		}
	}

	r.runJobs(ctx, p, jobs, summary, tables)

	results := Results{}
	for i, rs := range summary.Requests {
		if rs.Outcome != Failed && tables[i] != nil {
			results.put(rs.Request.Exchange, rs.Request.DataType, tables[i])
		}
	}

	summary.Elapsed = time.Since(start)
	summary.report(r.log)
	return results, summary, ctx.Err()
}

// runJobs drains jobs with p.workers goroutines. Each job writes only its
// own slot of summary.Requests and tables.
func (r *Runner) runJobs(ctx context.Context, p plan, jobs []job, summary *Summary, tables []*models.Table) {
	if len(jobs) == 0 {
		return
	}
	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := r.log.WithComponent("pipeline").WithField("worker_id", workerID)
			for j := range jobCh {
				rs, t := r.run(ctx, p.dir, j)
				summary.Requests[j.slot] = rs
				tables[j.slot] = t
				log.WithFields(logger.Fields{
					"exchange":  j.req.Exchange,
					"data_type": string(j.req.DataType),
					"outcome":   string(rs.Outcome),
				}).Debug("job done")
			}
		}(i)
	}
	wg.Wait()
}

// run fetches, normalizes and writes one request.
func (r *Runner) run(ctx context.Context, dir string, j job) (RequestSummary, *models.Table) {
	start := time.Now()
	rs := RequestSummary{Request: j.req, Network: true}
	fail := func(err error) (RequestSummary, *models.Table) {
		rs.Outcome = Failed
		rs.Err = err
		rs.Duration = time.Since(start)
		return rs, nil
	}

	if err := ctx.Err(); err != nil {
		rs.Network = false
		return fail(err)
	}

	f, _ := r.fetcher(j.req.Exchange)
	var table *models.Table
	if j.hit != nil {
		table = j.hit.Table
		for _, gap := range j.hit.Missing {
			part, err := reader.Fetch(ctx, f, j.req.WithRange(gap))
			if err != nil {
				return fail(err)
			}
			table = processor.Merge(table, part, j.req.Range)
		}
	} else {
		t, err := reader.Fetch(ctx, f, j.req)
		if err != nil {
			return fail(err)
		}
		table = processor.Normalize(t, j.req.Range)
	}

	if idx := processor.Validate(table); idx >= 0 {
		return fail(fmt.Errorf("%s %s: rows out of order at %d", j.req.Key(), j.req.Symbol, idx))
	}

	path, err := r.writer.Write(ctx, dir, j.req, table)
	if err != nil {
		return fail(err)
	}

	rs.Rows = table.Len()
	rs.Path = path
	rs.Outcome = Succeeded
	if table.Len() == 0 {
		rs.Outcome = Empty
	}
	rs.Duration = time.Since(start)
	return rs, table
}

// IsInvalidInput reports whether err came from request validation.
func IsInvalidInput(err error) bool {
	return errors.Is(err, models.ErrInvalidInput)
}
