package retry

import (
	"testing"
	"time"

	"github.com/facturacr/einvoice-engine/internal/domain"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		message string
		want    domain.ErrorCategory
	}{
		{"HTTP 429: too many requests", domain.CategoryRateLimit},
		{"rate limit exceeded, slow down", domain.CategoryRateLimit},
		{"401 Unauthorized", domain.CategoryAuth},
		{"forbidden: missing scope", domain.CategoryAuth},
		{"token expired", domain.CategoryAuth},
		{"HTTP 400 bad request", domain.CategoryValidation},
		{"invalid clave format", domain.CategoryValidation},
		{"schema validation failed", domain.CategoryValidation},
		{"HTTP 500 internal server error", domain.CategoryServer},
		{"502 bad gateway", domain.CategoryServer},
		{"service unavailable", domain.CategoryServer},
		{"request timeout after 30s", domain.CategoryNetwork},
		{"connection refused", domain.CategoryNetwork},
		{"dns lookup failed", domain.CategoryNetwork},
		{"temporary failure, try again", domain.CategoryTransient},
		{"something exploded", domain.CategoryUnknown},
		{"", domain.CategoryUnknown},
	}

	for _, tc := range cases {
		if got := Classify(tc.message); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestClassifyOrderFirstMatchWins(t *testing.T) {
	t.Parallel()

	// "429" outranks "server error" even when both substrings are present.
	if got := Classify("server error after 429 response"); got != domain.CategoryRateLimit {
		t.Fatalf("Classify = %s, want RATE_LIMIT", got)
	}
	// "401" outranks "connection".
	if got := Classify("connection closed with 401"); got != domain.CategoryAuth {
		t.Fatalf("Classify = %s, want AUTH", got)
	}
}

func TestDelayMonotonic(t *testing.T) {
	t.Parallel()

	categories := []domain.ErrorCategory{
		domain.CategoryTransient, domain.CategoryNetwork, domain.CategoryServer,
		domain.CategoryRateLimit, domain.CategoryAuth, domain.CategoryValidation,
		domain.CategoryUnknown,
	}
	for _, cat := range categories {
		for n := 0; n < 6; n++ {
			if Delay(n+1, cat) < Delay(n, cat) {
				t.Errorf("Delay(%d, %s) < Delay(%d, %s)", n+1, cat, n, cat)
			}
		}
	}
}

func TestDelayValues(t *testing.T) {
	t.Parallel()

	if got := Delay(0, domain.CategoryTransient); got != 5*time.Minute {
		t.Errorf("Delay(0, transient) = %v, want 5m", got)
	}
	if got := Delay(1, domain.CategoryServer); got != time.Duration(1.5*float64(15*time.Minute)) {
		t.Errorf("Delay(1, server) = %v, want 22m30s", got)
	}
	if got := Delay(0, domain.CategoryValidation); got != 30*time.Minute {
		t.Errorf("Delay(0, validation) = %v, want 30m", got)
	}
	// Attempts past the table clamp to the last step.
	if got := Delay(99, domain.CategoryTransient); got != 720*time.Minute {
		t.Errorf("Delay(99, transient) = %v, want 720m", got)
	}
	if got := Delay(-1, domain.CategoryTransient); got != 5*time.Minute {
		t.Errorf("Delay(-1, transient) = %v, want 5m", got)
	}
}

func TestMaxRetries(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCategory]int{
		domain.CategoryTransient:  5,
		domain.CategoryNetwork:    5,
		domain.CategoryServer:     5,
		domain.CategoryRateLimit:  4,
		domain.CategoryUnknown:    3,
		domain.CategoryAuth:       3,
		domain.CategoryValidation: 2,
	}
	for cat, want := range cases {
		if got := MaxRetries(cat); got != want {
			t.Errorf("MaxRetries(%s) = %d, want %d", cat, got, want)
		}
	}
	if got := MaxRetries(domain.ErrorCategory("BOGUS")); got != 3 {
		t.Errorf("MaxRetries(bogus) = %d, want 3", got)
	}
}
