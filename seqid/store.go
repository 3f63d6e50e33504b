// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package seqid

import "sync"

// MemoryStore keeps counters in process memory. Intended for tests and for
// sessions that do not need counters to survive a restart.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]int64)}
}

func (s *MemoryStore) Get(namespace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[namespace], nil
}

func (s *MemoryStore) Set(namespace string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[namespace] = value
	return nil
}
