// Package errclass maps low-level failures from the store, the network and
// the extractor onto a closed, user-facing taxonomy. Classification is pure
// and total: any input, including nil, yields a usable result.
package errclass

import (
	"errors"
	"strings"

	"github.com/linkstash/linkstash/internal/canonical"
)

// Category is the closed error taxonomy of the capture pipeline.
type Category string

const (
	CategoryInvalidURL          Category = "invalid_url"
	CategoryDuplicateLink       Category = "duplicate_link"
	CategoryAuthExpired         Category = "auth_expired"
	CategoryNetworkUnavailable  Category = "network_unavailable"
	CategoryTimeout             Category = "timeout"
	CategoryExtractionFailed    Category = "extraction_failed"
	CategoryRateLimited         Category = "rate_limited"
	CategoryPermissionDenied    Category = "permission_denied"
	CategoryUpstreamUnavailable Category = "upstream_unavailable"
	CategoryUnknown             Category = "unknown"
)

// Severity drives how prominently the UI layer surfaces the failure.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Classified is the user-facing rendering of a failure.
type Classified struct {
	Category   Category
	Message    string
	Suggestion string
	Severity   Severity
}

// rule is one (patterns, result) pair of the ordered match table. A rule
// matches when any of its lower-cased substrings occurs in the error text.
type rule struct {
	patterns []string
	result   Classified
}

// Ordered-first-match table. More specific categories come first so e.g. a
// "duplicate key" store message is never swallowed by the generic 5xx rule.
var rules = []rule{
	{
		patterns: []string{"links_owner_canonical_key", "23505", "duplicate key", "unique constraint", "unique violation", "already saved"},
		result: Classified{
			Category: CategoryDuplicateLink,
			Message:  "You already saved this link.",
			Severity: SeverityInfo,
		},
	},
	{
		patterns: []string{"jwt expired", "token expired", "session expired", "not authenticated", "status 401", "invalid token"},
		result: Classified{
			Category:   CategoryAuthExpired,
			Message:    "Your session has expired.",
			Suggestion: "Sign in again to keep saving links.",
			Severity:   SeverityWarning,
		},
	},
	{
		patterns: []string{"rate limit", "too many requests", "status 429"},
		result: Classified{
			Category:   CategoryRateLimited,
			Message:    "You're saving links a little too fast.",
			Suggestion: "Wait a moment and try again.",
			Severity:   SeverityWarning,
		},
	},
	{
		patterns: []string{"permission denied", "row-level security", "forbidden", "status 403"},
		result: Classified{
			Category: CategoryPermissionDenied,
			Message:  "You don't have access to this item.",
			Severity: SeverityError,
		},
	},
	{
		patterns: []string{"deadline exceeded", "timeout", "timed out"},
		result: Classified{
			Category:   CategoryTimeout,
			Message:    "The request took too long.",
			Suggestion: "Check your connection and try again.",
			Severity:   SeverityWarning,
		},
	},
	{
		patterns: []string{"connection refused", "no such host", "network is unreachable", "connection reset", "broken pipe", "dial tcp", "offline"},
		result: Classified{
			Category:   CategoryNetworkUnavailable,
			Message:    "Can't reach the server right now.",
			Suggestion: "Your link is queued and will sync once you're back online.",
			Severity:   SeverityWarning,
		},
	},
	{
		patterns: []string{"extraction failed", "failed to fetch page", "fallback"},
		result: Classified{
			Category: CategoryExtractionFailed,
			Message:  "Couldn't load a preview for this link.",
			Severity: SeverityInfo,
		},
	},
	{
		patterns: []string{"invalid url", "unsupported protocol scheme", "missing protocol scheme"},
		result: Classified{
			Category:   CategoryInvalidURL,
			Message:    "That doesn't look like a valid link.",
			Suggestion: "Double-check the URL and try again.",
			Severity:   SeverityError,
		},
	},
	{
		patterns: []string{"status 500", "status 502", "status 503", "status 504", "bad gateway", "service unavailable", "internal server error"},
		result: Classified{
			Category:   CategoryUpstreamUnavailable,
			Message:    "The service is having trouble right now.",
			Suggestion: "Try again in a few minutes.",
			Severity:   SeverityWarning,
		},
	},
}

var fallback = Classified{
	Category:   CategoryUnknown,
	Message:    "Something went wrong.",
	Suggestion: "Please try again.",
	Severity:   SeverityError,
}

// Classify maps any error onto the taxonomy. It never panics and never
// returns a zero result; unrecognized errors get the generic fallback.
func Classify(err error) Classified {
	if err == nil {
		return fallback
	}

	// Typed errors first: substring matching is only the safety net.
	if errors.Is(err, canonical.ErrInvalidURL) {
		for _, r := range rules {
			if r.result.Category == CategoryInvalidURL {
				return r.result
			}
		}
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(msg, p) {
				return r.result
			}
		}
	}
	return fallback
}

// IsDuplicate reports whether err is a duplicate-link violation, so callers
// can treat duplicate-on-save as a soft success instead of an error banner.
func IsDuplicate(err error) bool {
	return err != nil && Classify(err).Category == CategoryDuplicateLink
}

// IsAuthError reports whether err means the session is no longer valid.
func IsAuthError(err error) bool {
	return err != nil && Classify(err).Category == CategoryAuthExpired
}

// IsNetworkError reports whether err is a connectivity-class failure
// (unreachable network or timeout) worth retrying before surfacing.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	c := Classify(err).Category
	return c == CategoryNetworkUnavailable || c == CategoryTimeout
}
