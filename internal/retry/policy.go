package retry

import (
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

// baseDelays is the backoff ladder in minutes, indexed by attempt number and
// clamped to the last step.
var baseDelays = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
	240 * time.Minute,
	720 * time.Minute,
}

// categoryMultipliers scale the base delay per error category. Validation and
// auth failures usually need a human, so they wait longest between attempts.
var categoryMultipliers = map[domain.ErrorCategory]float64{
	domain.CategoryTransient:  1.0,
	domain.CategoryNetwork:    1.5,
	domain.CategoryServer:     1.5,
	domain.CategoryRateLimit:  2.0,
	domain.CategoryUnknown:    2.0,
	domain.CategoryAuth:       3.0,
	domain.CategoryValidation: 6.0,
}

// categoryMaxRetries is the automated attempt budget per category.
var categoryMaxRetries = map[domain.ErrorCategory]int{
	domain.CategoryTransient:  5,
	domain.CategoryNetwork:    5,
	domain.CategoryServer:     5,
	domain.CategoryRateLimit:  4,
	domain.CategoryUnknown:    3,
	domain.CategoryAuth:       3,
	domain.CategoryValidation: 2,
}

// Delay returns the wait before the given attempt (zero-based) for a category.
// The synchronous submission client's 429 compounding never feeds into this;
// queue delays are a pure function of (attempt, category).
func Delay(attempt int, category domain.ErrorCategory) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(baseDelays) {
		attempt = len(baseDelays) - 1
	}

	multiplier, ok := categoryMultipliers[category]
	if !ok {
		multiplier = 1.0
	}
	return time.Duration(float64(baseDelays[attempt]) * multiplier)
}

// MaxRetries returns the automated attempt budget for a category.
func MaxRetries(category domain.ErrorCategory) int {
	if n, ok := categoryMaxRetries[category]; ok {
		return n
	}
	return 3
}
