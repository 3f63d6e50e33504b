// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package seqid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekDoesNotConsume(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	first, err := a.PeekNext("p")
	require.NoError(t, err)
	second, err := a.PeekNext("p")
	require.NoError(t, err)

	assert.Equal(t, "p-1", first)
	assert.Equal(t, first, second)
}

func TestConfirmAdvances(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	id, err := a.Confirm("p")
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	next, err := a.PeekNext("p")
	require.NoError(t, err)
	assert.Equal(t, "p-2", next)
}

func TestSyncFromKnownIDs(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	// Scenario: snapshot returns p-1, allocator proposes p-2 next.
	require.NoError(t, a.SyncFromKnownIDs("p", []string{"p-1"}))
	next, err := a.PeekNext("p")
	require.NoError(t, err)
	assert.Equal(t, "p-2", next)

	// Foreign and malformed ids are skipped, case is ignored.
	require.NoError(t, a.SyncFromKnownIDs("p", []string{"l-99", "p-abc", "P-7", "p-3"}))
	next, err = a.PeekNext("p")
	require.NoError(t, err)
	assert.Equal(t, "p-8", next)
}

func TestSyncNeverLowers(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	require.NoError(t, a.SyncFromKnownIDs("req", []string{"req-10"}))
	require.NoError(t, a.SyncFromKnownIDs("req", []string{"req-4"}))
	require.NoError(t, a.SyncFromServerNext("req", "req-3"))

	next, err := a.PeekNext("req")
	require.NoError(t, err)
	assert.Equal(t, "req-11", next)
}

func TestSyncFromServerNext(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	require.NoError(t, a.SyncFromServerNext("l", "l-7"))
	next, err := a.PeekNext("l")
	require.NoError(t, err)
	assert.Equal(t, "l-7", next)

	err = a.SyncFromServerNext("l", "garbage")
	assert.Error(t, err)
}

func TestNamespacesAreIndependent(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	_, err := a.Confirm("p")
	require.NoError(t, err)

	next, err := a.PeekNext("l")
	require.NoError(t, err)
	assert.Equal(t, "l-1", next)
}

func TestMonotonicUnderMixedCalls(t *testing.T) {
	a := NewAllocator(NewMemoryStore())

	var last int64
	for i := 0; i < 20; i++ {
		if i%3 == 0 {
			require.NoError(t, a.SyncFromKnownIDs("p", []string{fmt.Sprintf("p-%d", i)}))
		}
		id, err := a.Confirm("p")
		require.NoError(t, err)

		var n int64
		_, err = fmt.Sscanf(id, "p-%d", &n)
		require.NoError(t, err)
		assert.Greater(t, n, last, "confirm must always move forward")
		last = n
	}
}
