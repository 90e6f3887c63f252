package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorCategory is the normalized classification of a call failure.
type ErrorCategory int

const (
	// CategoryUnknown means no classifier matched; treated as retryable
	// under the default backoff rules.
	CategoryUnknown ErrorCategory = iota
	// CategoryTransient covers network blips and other short-lived faults.
	CategoryTransient
	// CategoryRateLimit covers provider rate limiting (429, overloaded),
	// usually with a provider-supplied retry hint.
	CategoryRateLimit
	// CategoryServerError covers 5xx provider failures.
	CategoryServerError
	// CategoryClientError covers invalid requests; never retried.
	CategoryClientError
	// CategoryAuthError covers authentication/authorization failures; never
	// retried.
	CategoryAuthError
	// CategoryModelNotFound covers unknown model identifiers; never retried.
	CategoryModelNotFound
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryServerError:
		return "server_error"
	case CategoryClientError:
		return "client_error"
	case CategoryAuthError:
		return "auth_error"
	case CategoryModelNotFound:
		return "model_not_found"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this category may be retried at all.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryClientError, CategoryAuthError, CategoryModelNotFound:
		return false
	default:
		return true
	}
}

// Classification is the result of mapping a raw provider error.
type Classification struct {
	Category ErrorCategory
	// RetryAfter is the provider-supplied retry hint, zero when absent.
	RetryAfter time.Duration
}

// Classifier maps a raw error from a specific provider into a normalized
// category and optional retry hint.
type Classifier interface {
	Classify(err error) Classification
}

// classifyStatus maps an HTTP status code plus response headers to a
// Classification. Shared by the provider classifiers since both SDKs expose
// the underlying *http.Response.
func classifyStatus(code int, resp *http.Response) Classification {
	var hint time.Duration
	if resp != nil {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			hint = d
		}
	}

	switch {
	case code == http.StatusTooManyRequests || code == 529: // 529: provider overloaded
		return Classification{Category: CategoryRateLimit, RetryAfter: hint}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Classification{Category: CategoryAuthError}
	case code == http.StatusNotFound:
		return Classification{Category: CategoryModelNotFound}
	case code >= 500:
		return Classification{Category: CategoryServerError, RetryAfter: hint}
	case code >= 400:
		return Classification{Category: CategoryClientError}
	default:
		return Classification{Category: CategoryUnknown}
	}
}

// classifyGeneric handles non-SDK errors common to both providers.
func classifyGeneric(err error) (Classification, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Category: CategoryTransient}, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{Category: CategoryTransient}, true
	}

	return Classification{}, false
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}

	if s, err := strconv.Atoi(v); err == nil {
		if s < 0 {
			s = 0
		}
		return time.Duration(s) * time.Second, true
	}

	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}

	d := time.Until(t)
	if d < 0 {
		d = 0
	}

	return d, true
}
