// Package client implements the device side of the pipeline: a disposable
// in-memory mirror of the owner's collection, a durable outbox of pending
// writes, and the reconciliation logic that keeps both aligned with the
// remote store.
package client

import (
	"sort"
	"sync"

	"github.com/linkstash/linkstash/internal/domain"
)

// Snapshot is the device's in-memory mirror of the owner's collection.
// Purely a cache: it can be dropped and rebuilt from the remote store at any
// time. Links are indexed by Key(), so an entry migrates from its local id
// to the remote id once the write is confirmed.
type Snapshot struct {
	mu    sync.RWMutex
	links map[string]*domain.Link

	watchMu   sync.Mutex
	nextWatch int
	watchers  map[int]func(l *domain.Link, removed bool)
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		links:    make(map[string]*domain.Link),
		watchers: make(map[int]func(l *domain.Link, removed bool)),
	}
}

// OnChange registers fn to run after every snapshot mutation with a copy of
// the affected link; removed is true for deletions. Callbacks run
// synchronously on the mutating goroutine, outside the snapshot lock. The
// returned cancel unregisters fn and is idempotent.
func (s *Snapshot) OnChange(fn func(l *domain.Link, removed bool)) (cancel func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn

	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Snapshot) notify(l *domain.Link, removed bool) {
	s.watchMu.Lock()
	fns := make([]func(*domain.Link, bool), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		cp := *l
		fn(&cp, removed)
	}
}

// Get returns a copy of the link under the given key.
func (s *Snapshot) Get(key string) (*domain.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[key]
	if !ok {
		return nil, false
	}
	cp := *l
	return &cp, true
}

// ByCanonical returns the link with the given canonical URL, if any. Drives
// local duplicate suppression before a capture is even queued.
func (s *Snapshot) ByCanonical(canonicalURL string) (*domain.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.links {
		if l.CanonicalURL == canonicalURL {
			cp := *l
			return &cp, true
		}
	}
	return nil, false
}

// All returns the collection, newest first.
func (s *Snapshot) All() []*domain.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Link, 0, len(s.links))
	for _, l := range s.links {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Put stores a copy of the link under its current key.
func (s *Snapshot) Put(l *domain.Link) {
	s.mu.Lock()
	cp := *l
	s.links[cp.Key()] = &cp
	s.mu.Unlock()

	s.notify(l, false)
}

// Promote replaces the entry held under localID with the confirmed remote
// row, now keyed by its remote id.
func (s *Snapshot) Promote(localID string, confirmed *domain.Link) {
	s.mu.Lock()
	delete(s.links, localID)
	cp := *confirmed
	s.links[cp.Key()] = &cp
	s.mu.Unlock()

	s.notify(confirmed, false)
}

// Delete removes the link under the given key.
func (s *Snapshot) Delete(key string) {
	s.mu.Lock()
	l, ok := s.links[key]
	if ok {
		delete(s.links, key)
	}
	s.mu.Unlock()

	if ok {
		s.notify(l, true)
	}
}

// Len returns the number of cached links.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}
