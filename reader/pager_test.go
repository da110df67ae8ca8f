package reader

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"histflow/config"
	"histflow/models"
)

func testReaderConfig() config.ReaderConfig {
	cfg := config.Default().Reader
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = config.JitterConfig{}
	cfg.Timeout = time.Second
	return cfg
}

func mustRange(t *testing.T, start, end string) models.TimeRange {
	t.Helper()
	tr, err := models.ParseTimeRange(start, end)
	if err != nil {
		t.Fatalf("parse range: %v", err)
	}
	return tr
}

// candleSource serves one row per interval between start and end, honouring
// the window and limit like a real kline endpoint.
func candleSource(iv time.Duration, calls *int32) PageFunc {
	return func(ctx context.Context, w models.Window, limit int) (Page, error) {
		atomic.AddInt32(calls, 1)
		var rows []models.Row
		first := w.Start.Truncate(iv)
		if first.Before(w.Start) {
			first = first.Add(iv)
		}
		for ts := first; !ts.After(w.End) && len(rows) < limit; ts = ts.Add(iv) {
			rows = append(rows, models.Row{Time: ts, Values: []float64{float64(ts.Unix())}})
		}
		// newest first, like Bybit
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return Page{Rows: rows}, nil
	}
}

func TestPaginateMultiplePages(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-02")

	var calls int32
	spec := CandleSpec("BTCUSDT", models.PriceIndex, tr, "1m", 500)
	table, err := p.Paginate(context.Background(), spec, candleSource(time.Minute, &calls))
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if table.Len() != 1440 {
		t.Fatalf("expected 1440 rows, got %d", table.Len())
	}
	if calls != 3 {
		t.Fatalf("expected 3 pages for 1440 rows at limit 500, got %d", calls)
	}
	for i := 1; i < table.Len(); i++ {
		if got := table.Rows[i].Time.Sub(table.Rows[i-1].Time); got != time.Minute {
			t.Fatalf("gap or duplicate at row %d: %s", i, got)
		}
	}
	if !table.First().Equal(tr.Start) || !table.Last().Equal(tr.End.Add(-time.Minute)) {
		t.Fatalf("unexpected bounds %s .. %s", table.First(), table.Last())
	}
}

func TestPaginateEmptyPageStops(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-10")

	var calls int32
	table, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1h", 24),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			n := atomic.AddInt32(&calls, 1)
			if n > 2 {
				return Page{}, nil
			}
			return candleSource(time.Hour, new(int32))(ctx, w, limit)
		})
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected pagination to stop after the empty page, got %d calls", calls)
	}
	if table.Len() != 48 {
		t.Fatalf("expected 48 rows, got %d", table.Len())
	}
}

func TestPaginateEmptyRange(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-01")
	table, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1m", 10),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			t.Fatalf("no call expected for an empty range")
			return Page{}, nil
		})
	if err != nil || table.Len() != 0 {
		t.Fatalf("expected empty table, got %d rows, err %v", table.Len(), err)
	}
}

func TestPaginateRetryThenSucceed(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-02")

	var calls int32
	source := candleSource(time.Hour, new(int32))
	table, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1h", 100),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return Page{}, errors.New("connection reset by peer")
			}
			return source(ctx, w, limit)
		})
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if table.Len() != 24 {
		t.Fatalf("expected 24 rows, got %d", table.Len())
	}
}

func TestPaginateRetryExhausted(t *testing.T) {
	cfg := testReaderConfig()
	p := NewPager("mock", cfg)
	tr := mustRange(t, "2025-01-01", "2025-01-02")

	var calls int32
	_, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1h", 100),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			atomic.AddInt32(&calls, 1)
			return Page{}, errors.New("503 service unavailable")
		})
	if !errors.Is(err, models.ErrRequestFailed) {
		t.Fatalf("expected request failed, got %v", err)
	}
	var re *models.RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *models.RequestError, got %T", err)
	}
	if int(calls) != cfg.Retry.MaxAttempts || re.Attempts != cfg.Retry.MaxAttempts {
		t.Fatalf("expected %d attempts, got calls=%d attempts=%d", cfg.Retry.MaxAttempts, calls, re.Attempts)
	}
	if !re.Window.Start.Equal(tr.Start) {
		t.Fatalf("error should name the failing window, got %s", re.Window)
	}
}

func TestPaginatePermanentErrorNotRetried(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-02")

	var calls int32
	_, err := p.Paginate(context.Background(), CandleSpec("NOPE", models.Price, tr, "1h", 100),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			atomic.AddInt32(&calls, 1)
			return Page{}, Permanent(errors.New("invalid symbol"))
		})
	if err == nil || calls != 1 {
		t.Fatalf("expected one attempt and an error, got calls=%d err=%v", calls, err)
	}
}

func TestPaginateTimeoutCountsAsAttempt(t *testing.T) {
	cfg := testReaderConfig()
	cfg.Timeout = 10 * time.Millisecond
	p := NewPager("mock", cfg)
	tr := mustRange(t, "2025-01-01", "2025-01-02")

	var calls int32
	_, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1h", 100),
		func(ctx context.Context, w models.Window, limit int) (Page, error) {
			atomic.AddInt32(&calls, 1)
			<-ctx.Done()
			return Page{}, ctx.Err()
		})
	if !errors.Is(err, context.DeadlineExceeded) || int(calls) != cfg.Retry.MaxAttempts {
		t.Fatalf("expected %d timed out attempts, got calls=%d err=%v", cfg.Retry.MaxAttempts, calls, err)
	}
}

func TestPaginateFundingCursor(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	tr := mustRange(t, "2025-01-01", "2025-01-04")

	// events every 8h with a millisecond of drift; 10h windows hold one or two
	var calls int32
	source := func(ctx context.Context, w models.Window, limit int) (Page, error) {
		atomic.AddInt32(&calls, 1)
		var page Page
		for ts := tr.Start; ts.Before(tr.End); ts = ts.Add(8 * time.Hour) {
			raw := ts.Add(time.Millisecond)
			if raw.Before(w.Start) || raw.After(w.End) {
				continue
			}
			page.Rows = append(page.Rows, models.Row{Time: ts, Values: []float64{0.0001, float64(ts.UnixMilli())}})
			page.Cursor = raw
		}
		return page, nil
	}
	table, err := p.Paginate(context.Background(), FundingSpec("BTCUSDT", tr, 10), source)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if table.Len() != 9 {
		t.Fatalf("expected 9 funding rows, got %d", table.Len())
	}
	if calls < 5 {
		t.Fatalf("expected several cursor pages, got %d", calls)
	}
	for i := 1; i < table.Len(); i++ {
		if !table.Rows[i].Time.After(table.Rows[i-1].Time) {
			t.Fatalf("rows not strictly increasing at %d", i)
		}
	}
}

func TestPaginateJitterBetweenCalls(t *testing.T) {
	cfg := testReaderConfig()
	cfg.Jitter = config.JitterConfig{Min: time.Second, Max: 3 * time.Second}
	p := NewPager("mock", cfg)

	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	tr := mustRange(t, "2025-01-01", "2025-01-02")
	if _, err := p.Paginate(context.Background(), CandleSpec("BTCUSDT", models.Price, tr, "1h", 10), candleSource(time.Hour, new(int32))); err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("expected a pause between each of 3 pages, got %d", len(slept))
	}
	for _, d := range slept {
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jitter %s outside bounds", d)
		}
	}
}

func TestCallRetries(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	var calls int32
	got, err := Call(context.Background(), p, "symbols", func(ctx context.Context) ([]string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("timeout")
		}
		return []string{"BTCUSDT"}, nil
	})
	if err != nil || len(got) != 1 || calls != 2 {
		t.Fatalf("got %v, %v after %d calls", got, err, calls)
	}
}

func TestCallExhaustedNamesOperation(t *testing.T) {
	p := NewPager("mock", testReaderConfig())
	_, err := Call(context.Background(), p, "exchange_info", func(ctx context.Context) ([]string, error) {
		return nil, errors.New("connection reset")
	})
	var re *models.RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if re.Op != "exchange_info" || re.DataType != "" {
		t.Fatalf("op %q data type %q", re.Op, re.DataType)
	}
	if !strings.Contains(err.Error(), "mock exchange_info failed") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
