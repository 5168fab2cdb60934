// Package progress holds the shared table of per-job encode positions.
package progress

import (
	"sync"

	"picpic.transcode/internal/core/domain"
)

// Registry maps a job label to its total and current position. It is safe
// for concurrent use; every method holds the lock only for the map access.
//
// Entries are never removed: a label that is retried on a later cycle keeps
// its first total and only moves forward.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*domain.ProgressEntry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*domain.ProgressEntry),
	}
}

// UpsertTotal creates the entry for label with current=0 if it does not
// exist yet. An existing total is never overwritten. It reports whether a
// new entry was inserted.
func (r *Registry) UpsertTotal(label string, total int) bool {
	if total < 0 {
		total = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[label]; ok {
		return false
	}
	r.entries[label] = &domain.ProgressEntry{Label: label, TotalSeconds: total}
	r.order = append(r.order, label)
	return true
}

// Advance moves the current position of label forward. It is a no-op when
// no entry exists for label or when current would move backwards.
func (r *Registry) Advance(label string, current int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[label]
	if !ok || current < e.CurrentSeconds {
		return false
	}
	e.CurrentSeconds = current
	return true
}

// Get returns a copy of the entry for label.
func (r *Registry) Get(label string) (domain.ProgressEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[label]
	if !ok {
		return domain.ProgressEntry{}, false
	}
	return *e, true
}

// Snapshot copies every entry out in insertion order.
func (r *Registry) Snapshot() []domain.ProgressEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ProgressEntry, 0, len(r.order))
	for _, label := range r.order {
		out = append(out, *r.entries[label])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
