package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable entry ids: prefix-1, prefix-2, ...
//
// This enables golden snapshot comparison of traces that carry entry ids.
//
// Thread-safety: Generate is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix selects "entry".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "entry"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (s *SequenceIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// Reset restarts the sequence at 1.
func (s *SequenceIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
