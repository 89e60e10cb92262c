package infra

import (
	"math"
	"time"
)

const (
	backoffBaseDelay = 1 * time.Second
	backoffMaxDelay  = 30 * time.Second
)

// CalculateBackoff returns the delay before retry number retryCount (0-based): 1s, 2s, 4s ... capped at 30s.
func CalculateBackoff(retryCount int) time.Duration {
	return CalculateBackoffWith(retryCount, backoffBaseDelay, backoffMaxDelay)
}

// CalculateBackoffWith is CalculateBackoff with explicit bounds.
func CalculateBackoffWith(retryCount int, base, maxDelay time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Avoid float overflow for large retry counts
	if retryCount > 30 {
		return maxDelay
	}
	delay := base * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
