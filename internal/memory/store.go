// Package memory implements the bounded per-agent memory log.
package memory

import (
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind classifies a memory entry.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindFact         Kind = "fact"
	KindPreference   Kind = "preference"
	KindAction       Kind = "action"
)

const (
	DefaultCapacity   = 100
	DefaultRetain     = 50
	DefaultQueryLimit = 5
)

// Entry is one remembered item. Entries are immutable once added.
type Entry struct {
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	Importance float64        `json:"importance"`
	Tags       map[string]any `json:"tags,omitempty"`
	Kind       Kind           `json:"kind"`

	seq uint64
}

// clone copies the tag map so callers never share it with the store.
func (e Entry) clone() Entry {
	e.Tags = maps.Clone(e.Tags)
	return e
}

// Store is an append-only log that compacts to its most important entries
// once it grows past capacity.
type Store struct {
	entries  []Entry
	capacity int
	retain   int
	seq      uint64
	now      func() time.Time
	mu       sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets the size that triggers compaction and the number of
// entries kept afterwards.
func WithCapacity(capacity, retain int) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
		if retain > 0 && retain <= s.capacity {
			s.retain = retain
		}
	}
}

// WithClock overrides the timestamp source for entries added without one.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		retain:   DefaultRetain,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.retain > s.capacity {
		s.retain = s.capacity
	}
	return s
}

// Add appends an entry, compacting the store if it exceeds capacity.
func (s *Store) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if e.Kind == "" {
		e.Kind = KindConversation
	}
	e = e.clone()
	s.seq++
	e.seq = s.seq
	s.entries = append(s.entries, e)

	if len(s.entries) > s.capacity {
		s.compact()
	}
}

// compact keeps the retain most important entries. Ties go to the more
// recent entry. Survivors stay in insertion order.
func (s *Store) compact() {
	ranked := make([]Entry, len(s.entries))
	copy(ranked, s.entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance > ranked[j].Importance
		}
		return ranked[i].seq > ranked[j].seq
	})
	kept := ranked[:s.retain]
	sort.Slice(kept, func(i, j int) bool { return kept[i].seq < kept[j].seq })
	s.entries = kept
}

// Query returns up to limit entries whose content contains at least one
// query word, ordered by (matched words, importance) descending.
func (s *Store) Query(text string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		entry     Entry
		relevance int
	}
	var hits []scored
	for _, e := range s.entries {
		lc := strings.ToLower(e.Content)
		n := 0
		for _, w := range words {
			if strings.Contains(lc, w) {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{entry: e, relevance: n})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].relevance != hits[j].relevance {
			return hits[i].relevance > hits[j].relevance
		}
		return hits[i].entry.Importance > hits[j].entry.Importance
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry.clone()
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (s *Store) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, n)
	for i, e := range s.entries[len(s.entries)-n:] {
		out[i] = e.clone()
	}
	return out
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
