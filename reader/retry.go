package reader

import (
	"context"
	"errors"
	"net"
	"time"

	"histflow/config"
	ratemetrics "histflow/internal/metrics/rate"
	"histflow/models"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the retry policy gives up immediately. Exchange
// clients use it for rejections that will not change on a second try, such
// as an unknown symbol or a malformed response.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable reports whether a failed attempt may be repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) || errors.Is(err, models.ErrInvalidInput) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// IsTimeout reports whether err is a per-attempt deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RetryPolicy is the immutable retry configuration of one client.
type RetryPolicy struct {
	Exchange    string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  int
	// Timeout bounds every single attempt.
	Timeout time.Duration
}

func NewRetryPolicy(exchange string, cfg config.ReaderConfig) RetryPolicy {
	return RetryPolicy{
		Exchange:    exchange,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.BackoffMultiplier,
		Timeout:     cfg.Timeout,
	}
}

// Backoff is the wait before attempt+1. The delay grows linearly with the
// attempt number and is stretched when the exchange throttled the call.
func (p RetryPolicy) Backoff(attempt int, sig ratemetrics.Signal) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if sig.Limited() && p.Multiplier > 1 {
		d *= time.Duration(p.Multiplier)
	}
	if sig.RetryAfter > d {
		d = sig.RetryAfter
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Attempt describes one failed try, handed to the OnRetry hook.
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
	Signal ratemetrics.Signal
}

// Retry calls fn until it succeeds, fails permanently or MaxAttempts is
// reached. It returns the number of attempts made.
func Retry[T any](ctx context.Context, p RetryPolicy, onRetry func(Attempt), fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return zero, n - 1, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		res, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return res, n, nil
		}
		lastErr = err

		// the parent context ending is not the call's fault
		if ctx.Err() != nil {
			return zero, n, ctx.Err()
		}
		if !IsRetryable(err) || n == attempts {
			return zero, n, err
		}

		sig := ratemetrics.Classify(p.Exchange, err)
		wait := p.Backoff(n, sig)
		if onRetry != nil {
			onRetry(Attempt{Number: n, Err: err, Wait: wait, Signal: sig})
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, n, err
		}
	}
	return zero, attempts, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
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
