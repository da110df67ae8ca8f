package logger

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

var (
	warnCount      int64
	errorCount     int64
	attemptCount   int64
	retryCount     int64
	requestsOK     int64
	requestsFailed int64
	requestsCached int64
	requestsEmpty  int64
	rowsWritten    int64
	uploadsOK      int64
	uploadsFailed  int64
)

// Report is a point in time copy of the run counters.
type Report struct {
	Warnings      int64 `json:"warnings"`
	Errors        int64 `json:"errors"`
	Attempts      int64 `json:"http_attempts"`
	Retries       int64 `json:"http_retries"`
	Succeeded     int64 `json:"requests_succeeded"`
	Failed        int64 `json:"requests_failed"`
	Cached        int64 `json:"requests_cached"`
	Empty         int64 `json:"requests_empty"`
	RowsWritten   int64 `json:"rows_written"`
	UploadsOK     int64 `json:"uploads_ok"`
	UploadsFailed int64 `json:"uploads_failed"`
}

func recordWarn()  { atomic.AddInt64(&warnCount, 1) }
func recordError() { atomic.AddInt64(&errorCount, 1) }

// IncrementAttempt counts one HTTP call to an exchange; retry marks a repeat
// of a call that already failed.
func IncrementAttempt(retry bool) {
	atomic.AddInt64(&attemptCount, 1)
	if retry {
		atomic.AddInt64(&retryCount, 1)
	}
}

// RecordRequest counts a finished fetch request by outcome.
func RecordRequest(outcome string, rows int) {
	switch outcome {
	case "succeeded":
		atomic.AddInt64(&requestsOK, 1)
		atomic.AddInt64(&rowsWritten, int64(rows))
	case "empty":
		atomic.AddInt64(&requestsEmpty, 1)
	case "cached":
		atomic.AddInt64(&requestsCached, 1)
	case "failed":
		atomic.AddInt64(&requestsFailed, 1)
	}
}

func RecordUpload(ok bool) {
	if ok {
		atomic.AddInt64(&uploadsOK, 1)
		return
	}
	atomic.AddInt64(&uploadsFailed, 1)
}

func Snapshot() Report {
	return Report{
		Warnings:      atomic.LoadInt64(&warnCount),
		Errors:        atomic.LoadInt64(&errorCount),
		Attempts:      atomic.LoadInt64(&attemptCount),
		Retries:       atomic.LoadInt64(&retryCount),
		Succeeded:     atomic.LoadInt64(&requestsOK),
		Failed:        atomic.LoadInt64(&requestsFailed),
		Cached:        atomic.LoadInt64(&requestsCached),
		Empty:         atomic.LoadInt64(&requestsEmpty),
		RowsWritten:   atomic.LoadInt64(&rowsWritten),
		UploadsOK:     atomic.LoadInt64(&uploadsOK),
		UploadsFailed: atomic.LoadInt64(&uploadsFailed),
	}
}

// ResetReport zeroes every counter.
func ResetReport() {
	for _, p := range []*int64{
		&warnCount, &errorCount, &attemptCount, &retryCount, &requestsOK, &requestsFailed,
		&requestsCached, &requestsEmpty, &rowsWritten, &uploadsOK, &uploadsFailed,
	} {
		atomic.StoreInt64(p, 0)
	}
}

// LogReport writes the current counters as one info line and forwards the
// request counters to CloudWatch.
func LogReport(log *Log) {
	r := Snapshot()
	log.WithComponent("report").WithFields(Fields{
		"warnings":           r.Warnings,
		"errors":             r.Errors,
		"http_attempts":      r.Attempts,
		"http_retries":       r.Retries,
		"requests_succeeded": r.Succeeded,
		"requests_failed":    r.Failed,
		"requests_cached":    r.Cached,
		"requests_empty":     r.Empty,
		"rows_written":       r.RowsWritten,
		"uploads_ok":         r.UploadsOK,
		"uploads_failed":     r.UploadsFailed,
		"goroutines":         runtime.NumGoroutine(),
	}).Info("run report")

	publishMetric("requests_succeeded", float64(r.Succeeded), nil)
	publishMetric("requests_failed", float64(r.Failed), nil)
	publishMetric("requests_cached", float64(r.Cached), nil)
	publishMetric("rows_written", float64(r.RowsWritten), nil)
}

// StartReport logs the counters every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				LogReport(log)
			}
		}
	}()
}
