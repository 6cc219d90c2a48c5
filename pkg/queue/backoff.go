package queue

import (
	"math/rand"
	"time"
)

const (
	// BackoffBase is the wait before the first retry.
	BackoffBase = 30 * time.Second
	// BackoffCap bounds the exponential growth.
	BackoffCap = 30 * time.Minute
	// BackoffJitter is the ± fraction applied to the computed wait.
	BackoffJitter = 0.20
)

// Backoff returns the wait before retry number retryCount (1-based):
// 30s * 2^(n-1), capped at 30 minutes, with ±20% jitter.
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := BackoffBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= BackoffCap {
			d = BackoffCap
			break
		}
	}
	jitter := 1 + BackoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}
