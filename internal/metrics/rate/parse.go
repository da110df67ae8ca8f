package rate

import (
	"strconv"
	"strings"
	"time"
)

// extractInts returns all integer substrings contained in s. Any non-digit
// characters are treated as separators.
func extractInts(s string) []int64 {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// bannedUntil reads the millisecond deadline out of messages such as
// "Way too much request weight used; IP banned until 1735689600000."
func bannedUntil(msg string) (time.Time, bool) {
	idx := strings.Index(strings.ToLower(msg), "until")
	if idx < 0 {
		return time.Time{}, false
	}
	for _, n := range extractInts(msg[idx:]) {
		// anything shorter is not a millisecond epoch
		if n > 1_000_000_000_000 {
			return time.UnixMilli(n), true
		}
	}
	return time.Time{}, false
}

// retryAfter parses a Retry-After header holding whole seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
