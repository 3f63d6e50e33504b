// Package seqid allocates human-meaningful sequential identifiers of the form
// <namespace>-<n> without a server round trip. The counters are a hint, not a
// lock: the server remains the sole arbiter of uniqueness, and the allocator
// only ever catches up, never goes back.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package seqid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Store persists one counter per namespace. Implementations must return 0 for
// namespaces they have never seen.
type Store interface {
	Get(namespace string) (int64, error)
	Set(namespace string, value int64) error
}

// Allocator hands out candidate identifiers per namespace. All methods are
// safe for concurrent use; the store is only ever mutated through here.
type Allocator struct {
	mu    sync.Mutex
	store Store
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store}
}

// PeekNext returns the next candidate identifier without consuming it. Used
// to pre-fill draft forms.
func (a *Allocator) PeekNext(namespace string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.store.Get(namespace)
	if err != nil {
		return "", fmt.Errorf("failed to read counter for %q: %w", namespace, err)
	}
	return formatID(namespace, n+1), nil
}

// Confirm consumes the next identifier: it increments the stored counter and
// returns the new value. Call it exactly once, right after the server accepts
// a creation with the peeked candidate.
func (a *Allocator) Confirm(namespace string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.store.Get(namespace)
	if err != nil {
		return "", fmt.Errorf("failed to read counter for %q: %w", namespace, err)
	}
	n++
	if err := a.store.Set(namespace, n); err != nil {
		return "", fmt.Errorf("failed to persist counter for %q: %w", namespace, err)
	}
	return formatID(namespace, n), nil
}

// SyncFromKnownIDs scans identifiers matching <namespace>-<digits> and raises
// the counter to the highest sequence observed. It never lowers the counter.
// This is how the allocator catches up after a snapshot reveals entities
// created by other sessions.
func (a *Allocator) SyncFromKnownIDs(namespace string, ids []string) error {
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(namespace) + `-(\d+)$`)
	if err != nil {
		return fmt.Errorf("bad namespace %q: %w", namespace, err)
	}

	var max int64
	for _, id := range ids {
		m := re.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raiseTo(namespace, max)
}

// SyncFromServerNext aligns the counter with a server-reported "next
// identifier" so that the following PeekNext matches the server's own
// expectation. Only ever raises.
func (a *Allocator) SyncFromServerNext(namespace, serverNextID string) error {
	idx := strings.LastIndex(serverNextID, "-")
	if idx < 0 || idx == len(serverNextID)-1 {
		return fmt.Errorf("server next id %q has no trailing sequence", serverNextID)
	}
	next, err := strconv.ParseInt(serverNextID[idx+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("server next id %q has no trailing sequence: %w", serverNextID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raiseTo(namespace, next-1)
}

// raiseTo sets the counter to n if that is higher than the stored value.
// Caller holds the lock.
func (a *Allocator) raiseTo(namespace string, n int64) error {
	if n <= 0 {
		return nil
	}
	current, err := a.store.Get(namespace)
	if err != nil {
		return fmt.Errorf("failed to read counter for %q: %w", namespace, err)
	}
	if n <= current {
		return nil
	}
	if err := a.store.Set(namespace, n); err != nil {
		return fmt.Errorf("failed to persist counter for %q: %w", namespace, err)
	}
	return nil
}

func formatID(namespace string, n int64) string {
	return fmt.Sprintf("%s-%d", namespace, n)
}
