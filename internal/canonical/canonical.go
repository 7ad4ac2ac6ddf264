package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned when the input cannot be parsed as a URL even
// after defaulting the scheme to https.
var ErrInvalidURL = errors.New("invalid url")

// Result is the output of Canonicalize.
type Result struct {
	// CanonicalURL is the per-owner deduplication key.
	CanonicalURL string
	// Domain is the display host, www-stripped.
	Domain string
}

var (
	schemeRe = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)

	// Known tracking parameters, matched together with their leading
	// separator so the separator of the next parameter can be repaired.
	trackingRe = regexp.MustCompile(`(?i)([?&])(?:utm_[^=&#]*|fbclid|gclid|ref|source)=[^&#]*&?`)

	// Leading www. of the host, preserving an optional scheme.
	wwwRe = regexp.MustCompile(`(?i)^((?:[a-z][a-z0-9+.-]*://)?)www\.`)

	// Best-effort host extraction when url.Parse gives nothing usable.
	looseDomainRe = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.-]*://)?(?:www\.)?([^/?#]+)`)
)

// Canonicalize reduces a raw URL to the canonical form used as the per-owner
// uniqueness key. Two URLs that differ only by tracking parameters, trailing
// slash, www. prefix, fragment, or letter case canonicalize identically, and
// the function is idempotent over its own output.
func Canonicalize(raw string) (Result, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}
	if err := checkParsable(s); err != nil {
		return Result{}, err
	}

	// Each step operates on the already-transformed string.
	s = stripTrackingParams(s)
	s = wwwRe.ReplaceAllString(s, "$1")
	s = strings.TrimSuffix(s, "/")
	s = strings.ToLower(s)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "?&")
	// Removing the query/fragment may have re-exposed a trailing slash.
	s = strings.TrimSuffix(s, "/")

	return Result{CanonicalURL: s, Domain: Domain(raw)}, nil
}

// FetchURL returns the URL to use for an outbound fetch of a captured page:
// the raw input as submitted, case and query intact, with https:// prefixed
// when no scheme is present. The canonical form is a deduplication key only
// and must never be fetched, since lowering the path can 404 on
// case-sensitive origins.
func FetchURL(raw string) string {
	s := strings.TrimSpace(raw)
	if !schemeRe.MatchString(s) {
		return "https://" + s
	}
	return s
}

// checkParsable validates the input as a URL, prefixing https:// when no
// scheme is present.
func checkParsable(s string) error {
	if !schemeRe.MatchString(s) {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: no host in %q", ErrInvalidURL, s)
	}
	return nil
}

// stripTrackingParams removes utm_*, fbclid, gclid, ref and source query
// parameters. The replacement keeps the leading separator, so the loop runs
// to a fixpoint and then repairs any "?&" seam left behind.
func stripTrackingParams(s string) string {
	for {
		next := trackingRe.ReplaceAllString(s, "$1")
		next = strings.Replace(next, "?&", "?", 1)
		if next == s {
			return s
		}
		s = next
	}
}

// Domain extracts the display host from a raw URL, www-stripped and
// lower-cased. It never fails: when parsing is impossible it falls back to a
// best-effort pattern match, and as a last resort returns the input unchanged.
func Domain(raw string) string {
	s := strings.TrimSpace(raw)

	parseable := s
	if !schemeRe.MatchString(parseable) {
		parseable = "https://" + parseable
	}
	if u, err := url.Parse(parseable); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	if m := looseDomainRe.FindStringSubmatch(s); m != nil && m[1] != "" {
		return strings.ToLower(m[1])
	}

	return raw
}
