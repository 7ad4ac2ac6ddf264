// Package metadata fetches a page once and derives title, description and
// thumbnail through a fixed fallback ladder. It is stateless and safe to run
// as an isolated remote procedure.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/utils"
)

const (
	// DefaultTimeout is the hard deadline for one extraction call.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent identifies extraction traffic to page owners.
	DefaultUserAgent = "linkstash-metadata/1.0 (+https://github.com/linkstash/linkstash)"

	// maxBodyBytes caps how much HTML is read; metadata lives in <head>.
	maxBodyBytes = 1 << 20
)

// Metadata is the result of a successful extraction. Description and
// ThumbnailURL stay nil when their ladder produced nothing.
type Metadata struct {
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnailUrl"`
	Domain       string  `json:"domain"`
}

// Complete reports whether the extraction counts as complete: at least one
// of description/thumbnail present. A title alone never qualifies.
func (m *Metadata) Complete() bool {
	return m.Description != nil || m.ThumbnailURL != nil
}

// ExtractionError is the single failure mode of the extractor. Callers must
// treat it as "save with fallback title = domain", never as a hard error.
type ExtractionError struct {
	URL      string
	Upstream string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, e.Upstream)
}

// Extractor issues one outbound GET per call with a distinct user agent.
type Extractor struct {
	client    *http.Client
	userAgent string
	log       logger.Logger
}

func NewExtractor(timeout time.Duration, userAgent string, log logger.Logger) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
	}
}

// Extract fetches pageURL and walks the fallback ladder:
//
//	title:       og:title -> <title> -> domain
//	description: og:description -> meta name=description -> nil
//	thumbnail:   og:image -> twitter:image -> nil
//
// Non-2xx responses, timeouts and parse failures all surface as a single
// *ExtractionError carrying the upstream message.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*Metadata, error) {
	domain := canonical.Domain(pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Upstream: err.Error()}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Upstream: err.Error()}
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExtractionError{
			URL:      pageURL,
			Upstream: fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}
	}

	page, err := parseHead(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Upstream: err.Error()}
	}

	md := &Metadata{Domain: domain}

	md.Title = firstNonEmpty(page.ogTitle, page.docTitle, domain)

	if desc := firstNonEmpty(page.ogDescription, page.metaDescription); desc != "" {
		md.Description = &desc
	}

	if img := firstNonEmpty(page.ogImage, page.twitterImage); img != "" {
		resolved := resolveThumbnail(pageURL, img)
		md.ThumbnailURL = &resolved
	}

	e.log.Debug("extracted metadata",
		logger.String("url", pageURL),
		logger.String("title", md.Title),
		logger.Bool("complete", md.Complete()))

	return md, nil
}

// pageMeta holds the raw candidates collected from the document head.
type pageMeta struct {
	docTitle        string
	ogTitle         string
	ogDescription   string
	ogImage         string
	twitterImage    string
	metaDescription string
}

func parseHead(r io.Reader) (*pageMeta, error) {
	z := html.NewTokenizer(r)
	var page pageMeta
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("html parse failure: %w", err)
			}
			return &page, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "title":
				inTitle = true
			case "meta":
				collectMeta(&page, t.Attr)
			case "body":
				// Head is over, everything we need has been seen.
				return &page, nil
			}

		case html.EndTagToken:
			if z.Token().Data == "title" {
				inTitle = false
			}

		case html.TextToken:
			if inTitle && page.docTitle == "" {
				page.docTitle = strings.TrimSpace(z.Token().Data)
			}
		}
	}
}

func collectMeta(page *pageMeta, attrs []html.Attribute) {
	var property, name, content string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "property":
			property = strings.ToLower(a.Val)
		case "name":
			name = strings.ToLower(a.Val)
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	if content == "" {
		return
	}

	switch property {
	case "og:title":
		setIfEmpty(&page.ogTitle, content)
	case "og:description":
		setIfEmpty(&page.ogDescription, content)
	case "og:image":
		setIfEmpty(&page.ogImage, content)
	}
	switch name {
	case "description":
		setIfEmpty(&page.metaDescription, content)
	case "twitter:image":
		setIfEmpty(&page.twitterImage, content)
	}
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// resolveThumbnail makes a thumbnail reference absolute. Relative paths are
// resolved against the page URL, protocol-relative ones inherit its scheme.
// Unresolvable references are returned as-is rather than dropped.
func resolveThumbnail(pageURL, thumb string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return thumb
	}
	ref, err := url.Parse(thumb)
	if err != nil {
		return thumb
	}
	return base.ResolveReference(ref).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
