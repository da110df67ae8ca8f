package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks bad dates, data types, intervals or exchanges.
	// It is raised before any network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransient marks a single failed HTTP attempt that may be retried.
	ErrTransient = errors.New("transient request error")
	// ErrRequestFailed marks a request that ran out of retries.
	ErrRequestFailed = errors.New("request failed")
	// ErrFilesystem marks an artifact that could not be read or written.
	ErrFilesystem = errors.New("filesystem error")
)

// Window is one paginated sub-range, both ends inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return w.Start.UTC().Format(TimestampLayout) + " → " + w.End.UTC().Format(TimestampLayout)
}

// RequestError reports the window on which a fetch gave up. Calls that are
// not data fetches, such as symbol listings, set Op and leave DataType empty.
type RequestError struct {
	Exchange string
	Op       string
	Symbol   string
	DataType DataType
	Window   Window
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Exchange, e.Op, e.Attempts, e.Err)
	}
	if e.Window.Start.IsZero() {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Exchange, e.DataType, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s %s: window %s failed after %d attempt(s): %v",
		e.Exchange, e.Symbol, e.DataType, e.Window, e.Attempts, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }
