// Package reliability classifies upstream failures and computes retry pacing.
package reliability

import (
	"strings"
	"time"
)

// unavailableSignatures are lowercase fragments that mark a failure as the
// remote service being unavailable rather than a fault in this session.
var unavailableSignatures = []string{
	"unavailable",
	"overloaded",
	"resource_exhausted",
	"resource exhausted",
	"rate limit",
	"quota",
	"try again later",
	"connection refused",
	"no such host",
}

// IsUpstreamUnavailable reports whether the failure text indicates upstream
// unavailability. Sessions surface these with a distinguished message so the
// operator knows the outage is not local.
func IsUpstreamUnavailable(message string) bool {
	lower := strings.ToLower(message)
	for _, sig := range unavailableSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
