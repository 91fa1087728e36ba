// Package querycontext holds the most recent single-query embedding input so a
// later search request without its own query text can be reranked against it.
//
// The slot is process-wide and carries no correlation key. With concurrent
// clients, an embeddings call from one client can become the context of another
// client's search. That is an accepted approximation: the slot is a best-effort
// hint, and the atomic pointer only rules out torn reads.
package querycontext

import "sync/atomic"

// Slot is a single-value, last-writer-wins store. The zero value is empty and
// ready to use.
type Slot struct {
	v atomic.Pointer[string]
}

// New returns an empty Slot.
func New() *Slot {
	return &Slot{}
}

// Store replaces the held query.
func (s *Slot) Store(query string) {
	s.v.Store(&query)
}

// Load returns the held query without clearing it.
func (s *Slot) Load() (string, bool) {
	p := s.v.Load()
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}
