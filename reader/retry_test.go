package reader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"histflow/config"
	ratemetrics "histflow/internal/metrics/rate"
	"histflow/models"
)

func TestBackoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 5}
	cases := []struct {
		attempt int
		sig     ratemetrics.Signal
		want    time.Duration
	}{
		{1, ratemetrics.Signal{}, time.Second},
		{2, ratemetrics.Signal{}, 2 * time.Second},
		{2, ratemetrics.Signal{RateLimited: true}, 10 * time.Second},
		{3, ratemetrics.Signal{IPBan: true}, 15 * time.Second},
		{1, ratemetrics.Signal{RateLimited: true, RetryAfter: 20 * time.Second}, 20 * time.Second},
		{10, ratemetrics.Signal{RateLimited: true}, 30 * time.Second},
	}
	for _, c := range cases {
		if got := p.Backoff(c.attempt, c.sig); got != c.want {
			t.Errorf("Backoff(%d, %+v) = %s, want %s", c.attempt, c.sig, got, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection refused"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{fmt.Errorf("bad: %w", models.ErrInvalidInput), false},
		{Permanent(errors.New("unknown symbol")), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	_, n, err := Retry(ctx, p, func(Attempt) { cancel() }, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 || n != 1 {
		t.Fatalf("expected cancellation after one call, got calls=%d n=%d err=%v", calls, n, err)
	}
}

func TestJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Jitter(jitterCfg(time.Second, 3*time.Second))
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jitter %s out of bounds", d)
		}
	}
	if Jitter(jitterCfg(0, 0)) != 0 {
		t.Fatalf("zero bounds must disable jitter")
	}
}

func jitterCfg(min, max time.Duration) config.JitterConfig {
	return config.JitterConfig{Min: min, Max: max}
}
