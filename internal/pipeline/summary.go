package pipeline

import (
	"time"

	"histflow/internal/metrics"
	"histflow/logger"
	"histflow/models"
)

// Outcome is how one fetch request ended.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Cached    Outcome = "cached"
	Empty     Outcome = "empty"
	Failed    Outcome = "failed"
)

// Results holds the tables of every request that did not fail, keyed by
// exchange then data type.
type Results map[string]map[models.DataType]*models.Table

func (r Results) put(exchange string, dt models.DataType, t *models.Table) {
	if r[exchange] == nil {
		r[exchange] = map[models.DataType]*models.Table{}
	}
	r[exchange][dt] = t
}

// RequestSummary is the outcome of one request.
type RequestSummary struct {
	Request  models.FetchRequest
	Outcome  Outcome
	Rows     int
	Path     string
	Err      error
	Duration time.Duration
	// Network is set when the request reached an exchange.
	Network bool
}

// Summary reports one FetchSingleSymbol run.
type Summary struct {
	Symbol   string
	Range    models.TimeRange
	Interval models.Interval
	Requests []RequestSummary
	Elapsed  time.Duration
}

func (s *Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Requests {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Fetched counts requests that went to the network.
func (s *Summary) Fetched() int {
	n := 0
	for _, r := range s.Requests {
		if r.Network {
			n++
		}
	}
	return n
}

func (s *Summary) AllFailed() bool {
	return len(s.Requests) > 0 && s.Count(Failed) == len(s.Requests)
}

// report feeds every outcome to the run counters and Prometheus, then logs
// one line per request and a closing total.
func (s *Summary) report(log *logger.Log) {
	for _, r := range s.Requests {
		metrics.RecordRequest(r.Request.Exchange, string(r.Request.DataType), string(r.Outcome))
		logger.RecordRequest(string(r.Outcome), r.Rows)

		entry := log.WithComponent("pipeline").WithFields(logger.Fields{
			"exchange":    r.Request.Exchange,
			"symbol":      r.Request.Symbol,
			"data_type":   string(r.Request.DataType),
			"outcome":     string(r.Outcome),
			"rows":        r.Rows,
			"path":        r.Path,
			"duration_ms": r.Duration.Milliseconds(),
		})
		if r.Err != nil {
			entry.WithError(r.Err).Error("request failed")
			continue
		}
		entry.Info("request finished")
	}

	log.WithComponent("pipeline").WithFields(logger.Fields{
		"symbol":    s.Symbol,
		"range":     s.Range.String(),
		"interval":  string(s.Interval),
		"requests":  len(s.Requests),
		"succeeded": s.Count(Succeeded),
		"cached":    s.Count(Cached),
		"empty":     s.Count(Empty),
		"failed":    s.Count(Failed),
		"elapsed":   s.Elapsed.String(),
	}).Info("symbol summary")
}

// SymbolResult is one symbol of a batch run.
type SymbolResult struct {
	Symbol  string
	Summary *Summary
	Err     error
}

// BatchSummary reports one FetchAllCommonSymbols run.
type BatchSummary struct {
	Range   models.TimeRange
	Symbols []string
	Results []SymbolResult
	// Succeeded counts symbols with no failed request, Partial those with
	// some, Failed those where every request failed.
	Succeeded int
	Partial   int
	Failed    int
	Elapsed   time.Duration
}

func (b *BatchSummary) add(res SymbolResult) {
	b.Results = append(b.Results, res)
	switch {
	case res.Err != nil || res.Summary == nil || res.Summary.AllFailed():
		b.Failed++
	case res.Summary.Count(Failed) > 0:
		b.Partial++
	default:
		b.Succeeded++
	}
}
