package sink

import (
	"sort"
	"sync"
	"time"
)

// NodeState is the newest accepted report from one source node.
type NodeState struct {
	Record    Record
	UpdatedAt time.Time
}

// Store retains the most recent report per source for the gateway's status
// surfaces. A node that stops reporting ages out of the active count but its
// last data stays readable.
type Store struct {
	mu    sync.RWMutex
	nodes map[uint8]NodeState

	now func() time.Time
}

// NewStore creates an empty node store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[uint8]NodeState),
		now:   time.Now,
	}
}

// Update records rec as its source's latest report.
func (s *Store) Update(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[rec.SourceID] = NodeState{Record: *rec, UpdatedAt: s.now()}
}

// Get returns the latest report heard from sourceID.
func (s *Store) Get(sourceID uint8) (NodeState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.nodes[sourceID]
	return st, ok
}

// Snapshot returns every known node's latest report, ordered by node id.
func (s *Store) Snapshot() []NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]NodeState, 0, len(s.nodes))
	for _, st := range s.nodes {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.SourceID < out[j].Record.SourceID
	})
	return out
}

// ActiveCount returns how many nodes reported within maxAge.
func (s *Store) ActiveCount(maxAge time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, st := range s.nodes {
		if now.Sub(st.UpdatedAt) <= maxAge {
			n++
		}
	}
	return n
}

// Count returns how many distinct sources have ever reported.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
