package bookmarkfile

import (
	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/domain"
)

// Mapper validates import entries and converts them to capture candidates.
type Mapper struct{}

// NewMapper creates a new import mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapResult separates importable links from entries that failed validation.
type MapResult struct {
	Links   []*domain.Link
	Skipped []SkippedEntry
}

// SkippedEntry records why an entry could not be imported.
type SkippedEntry struct {
	URL    string
	Reason string
}

// Map canonicalizes every entry, deduplicates by canonical URL within the
// file, and skips invalid entries instead of failing the whole import.
func (m *Mapper) Map(file *ImportFile) MapResult {
	var result MapResult
	seen := make(map[string]bool, len(file.Links))

	for _, entry := range file.Links {
		res, err := canonical.Canonicalize(entry.URL)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedEntry{
				URL:    entry.URL,
				Reason: "invalid url",
			})
			continue
		}
		if seen[res.CanonicalURL] {
			result.Skipped = append(result.Skipped, SkippedEntry{
				URL:    entry.URL,
				Reason: "duplicate within file",
			})
			continue
		}
		seen[res.CanonicalURL] = true

		title := entry.Title
		if title == "" {
			title = res.Domain
		}

		link := &domain.Link{
			RawURL:       entry.URL,
			CanonicalURL: res.CanonicalURL,
			Domain:       res.Domain,
			Title:        title,
		}
		if entry.Space != "" {
			space := entry.Space
			link.SpaceID = &space
		}
		result.Links = append(result.Links, link)
	}

	return result
}
