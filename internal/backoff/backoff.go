// Package backoff computes exponential retry delays for failing agents.
package backoff

import (
	"fmt"
	"time"
)

const (
	// DefaultBase is the delay after the first failure.
	DefaultBase = 5 * time.Second
	// DefaultCap bounds the delay regardless of failure count.
	DefaultCap = 300 * time.Second
)

// Delay returns the backoff delay for the given number of prior attempts,
// using the default base and cap: min(base * 2^attempts, cap).
// Negative attempts are treated as zero.
func Delay(attempts int) time.Duration {
	return DelayWith(attempts, DefaultBase, DefaultCap)
}

// DelayWith is Delay with an explicit base and cap.
func DelayWith(attempts int, base, limit time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Format renders a delay for human consumption: "45s" below one minute,
// "2m 5s" at or above.
func Format(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
