// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package seqid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	v, err := store.Get("p")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "missing namespace reads as zero")

	require.NoError(t, store.Set("p", 7))
	require.NoError(t, store.Set("p", 9))

	v, err = store.Get("p")
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	v, err = store.Get("l")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	a := NewAllocator(store)
	_, err = a.Confirm("req")
	require.NoError(t, err)
	_, err = a.Confirm("req")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	next, err := NewAllocator(reopened).PeekNext("req")
	require.NoError(t, err)
	assert.Equal(t, "req-3", next)
}
