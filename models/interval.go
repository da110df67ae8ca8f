package models

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a candle granularity such as "1m" or "1d".
type Interval string

const DefaultInterval Interval = "1m"

var intervals = map[Interval]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// Intervals returns the accepted intervals from shortest to longest.
func Intervals() []Interval {
	return []Interval{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}
}

// ParseInterval is case sensitive for months ("1M") and minutes ("1m").
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.TrimSpace(s))
	if _, ok := intervals[iv]; !ok {
		return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidInput, s)
	}
	return iv, nil
}

// Duration is the nominal length of one candle. A month counts as 30 days.
func (i Interval) Duration() time.Duration {
	return intervals[i]
}

func (i Interval) String() string { return string(i) }
