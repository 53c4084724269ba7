// Package retry holds the error-classification rules and the backoff/budget
// tables shared by the submission client and the durable retry queue. All
// tables are immutable package data; nothing here is mutated at runtime.
package retry

import (
	"errors"
	"strings"

	"github.com/facturacr/einvoice-engine/internal/domain"
	"github.com/facturacr/einvoice-engine/internal/hacienda"
)

// rule maps a set of case-insensitive substrings to an error category.
// Rules are evaluated in order; the first match wins.
type rule struct {
	keywords []string
	category domain.ErrorCategory
}

var classificationRules = []rule{
	{[]string{"429", "rate limit", "too many requests"}, domain.CategoryRateLimit},
	{[]string{"401", "403", "unauthorized", "forbidden", "authentication", "credentials", "token expired"}, domain.CategoryAuth},
	{[]string{"400", "invalid", "validation", "schema", "bad request"}, domain.CategoryValidation},
	{[]string{"500", "502", "503", "server error", "bad gateway", "service unavailable"}, domain.CategoryServer},
	{[]string{"timeout", "connection", "network", "dns", "socket"}, domain.CategoryNetwork},
	{[]string{"temporary", "try again", "transient"}, domain.CategoryTransient},
}

// Classify maps a free-text error message to an error category.
func Classify(errorMessage string) domain.ErrorCategory {
	msg := strings.ToLower(errorMessage)
	for _, r := range classificationRules {
		for _, kw := range r.keywords {
			if strings.Contains(msg, kw) {
				return r.category
			}
		}
	}
	return domain.CategoryUnknown
}

// CategoryOf classifies an operation failure. Structured client errors carry
// their kind directly; everything else falls back to message matching.
func CategoryOf(err error) domain.ErrorCategory {
	if err == nil {
		return domain.CategoryUnknown
	}

	var apiErr *hacienda.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case hacienda.KindRateLimit:
			return domain.CategoryRateLimit
		case hacienda.KindAuthentication, hacienda.KindAuthorization:
			return domain.CategoryAuth
		case hacienda.KindValidation, hacienda.KindNotFound:
			return domain.CategoryValidation
		case hacienda.KindServer:
			return domain.CategoryServer
		case hacienda.KindNetwork:
			return domain.CategoryNetwork
		}
	}

	return Classify(err.Error())
}
