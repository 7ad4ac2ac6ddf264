package bookmarkfile

import "testing"

func TestMapperCanonicalizesAndDeduplicates(t *testing.T) {
	file := &ImportFile{Links: []FileEntry{
		{URL: "https://WWW.Example.com/path/?utm_source=x", Title: "Kept"},
		{URL: "https://example.com/path#frag"}, // same canonical URL
		{URL: "example.com/other", Space: "reading"},
		{URL: "   "},
	}}

	result := NewMapper().Map(file)

	if len(result.Links) != 2 {
		t.Fatalf("links = %d, want 2", len(result.Links))
	}
	if result.Links[0].CanonicalURL != "https://example.com/path" {
		t.Errorf("canonical = %q", result.Links[0].CanonicalURL)
	}
	if result.Links[0].Title != "Kept" {
		t.Errorf("title = %q, want Kept", result.Links[0].Title)
	}

	// Scheme-less entries get https and the domain fallback title.
	if result.Links[1].CanonicalURL != "https://example.com/other" {
		t.Errorf("canonical = %q", result.Links[1].CanonicalURL)
	}
	if result.Links[1].Title != "example.com" {
		t.Errorf("fallback title = %q, want example.com", result.Links[1].Title)
	}
	if result.Links[1].SpaceID == nil || *result.Links[1].SpaceID != "reading" {
		t.Errorf("space = %v, want reading", result.Links[1].SpaceID)
	}

	if len(result.Skipped) != 2 {
		t.Fatalf("skipped = %d, want 2", len(result.Skipped))
	}
	reasons := map[string]bool{}
	for _, s := range result.Skipped {
		reasons[s.Reason] = true
	}
	if !reasons["duplicate within file"] || !reasons["invalid url"] {
		t.Errorf("skip reasons = %v", result.Skipped)
	}
}
