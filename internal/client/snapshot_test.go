package client

import (
	"testing"
	"time"

	"github.com/linkstash/linkstash/internal/domain"
)

type change struct {
	key     string
	removed bool
}

func TestSnapshotOnChange(t *testing.T) {
	s := NewSnapshot()

	var seen []change
	cancel := s.OnChange(func(l *domain.Link, removed bool) {
		seen = append(seen, change{key: l.Key(), removed: removed})
	})

	local := &domain.Link{LocalID: "local-1", CanonicalURL: "https://example.com/a"}
	s.Put(local)

	confirmed := &domain.Link{ID: "srv-1", CanonicalURL: "https://example.com/a", UpdatedAt: time.Now()}
	s.Promote("local-1", confirmed)

	s.Delete("srv-1")

	want := []change{
		{key: "local-1", removed: false},
		{key: "srv-1", removed: false},
		{key: "srv-1", removed: true},
	}
	if len(seen) != len(want) {
		t.Fatalf("observed %d changes, want %d: %+v", len(seen), len(want), seen)
	}
	for i, w := range want {
		if seen[i] != w {
			t.Errorf("change[%d] = %+v, want %+v", i, seen[i], w)
		}
	}

	// After cancel, mutations go unobserved.
	cancel()
	cancel() // idempotent
	s.Put(&domain.Link{ID: "srv-2", CanonicalURL: "https://example.com/b"})
	if len(seen) != len(want) {
		t.Errorf("observed %d changes after cancel, want %d", len(seen), len(want))
	}
}

func TestSnapshotDeleteMissingKeyDoesNotNotify(t *testing.T) {
	s := NewSnapshot()

	fired := 0
	s.OnChange(func(*domain.Link, bool) { fired++ })

	s.Delete("nope")
	if fired != 0 {
		t.Errorf("deleting a missing key fired %d notifications, want 0", fired)
	}
}
