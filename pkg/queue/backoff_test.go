package queue

import (
	"testing"
	"time"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	prev := time.Duration(0)
	for retry := 1; retry <= 5; retry++ {
		d := Backoff(retry)
		base := BackoffBase << (retry - 1)
		min := time.Duration(float64(base) * (1 - BackoffJitter))
		max := time.Duration(float64(base) * (1 + BackoffJitter))
		if base > BackoffCap {
			min = time.Duration(float64(BackoffCap) * (1 - BackoffJitter))
			max = time.Duration(float64(BackoffCap) * (1 + BackoffJitter))
		}
		if d < min || d > max {
			t.Errorf("retry %d: backoff %v outside [%v, %v]", retry, d, min, max)
		}
		if retry > 1 && base <= BackoffCap && d <= prev/4 {
			t.Errorf("retry %d: backoff %v did not grow from %v", retry, d, prev)
		}
		prev = d
	}
}

func TestBackoffCapped(t *testing.T) {
	// Far past the cap the delay must stay near 30 minutes.
	d := Backoff(20)
	max := time.Duration(float64(BackoffCap) * (1 + BackoffJitter))
	if d > max {
		t.Errorf("backoff %v exceeds cap with jitter %v", d, max)
	}
	if d < time.Duration(float64(BackoffCap)*(1-BackoffJitter)) {
		t.Errorf("backoff %v below capped minimum", d)
	}
}

func TestBackoffNonPositiveRetry(t *testing.T) {
	if d := Backoff(0); d <= 0 {
		t.Errorf("backoff for retry 0 = %v, want positive", d)
	}
}
