// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a store holding at most maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, min(maxLen, 1024)),
		maxLen: maxLen,
	}
}

// Save implements Store. The oldest tenth is dropped when full.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		removeCount := max(s.maxLen/10, 1)
		s.events = s.events[removeCount:]
	}
	s.events = append(s.events, *event)
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.limit()
	skipped := 0
	var results []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if !filter.matches(&event) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		results = append(results, event)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if !e.Timestamp.Before(olderThan) {
			kept = append(kept, e)
		}
	}
	deleted := int64(len(s.events) - len(kept))
	s.events = kept
	return deleted, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
