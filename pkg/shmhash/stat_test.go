package shmhash_test

import (
	"path/filepath"
	"testing"

	"github.com/calvinalkan/shmhash/pkg/shmhash"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_Stat_ReportsLayoutAndUsage(t *testing.T) {
	t.Parallel()

	m, err := shmhash.Init(shmhash.Options{
		Path:          filepath.Join(t.TempDir(), "region.shm"),
		MemorySize:    4096,
		MaxBuckets:    16,
		MaxFreeBlocks: 4,
	})
	require.NoError(t, err)
	defer m.Destroy()

	require.NoError(t, m.Insert([]byte("alpha"), []byte("1")))
	require.NoError(t, m.Insert([]byte("beta"), []byte("22")))
	require.NoError(t, m.Delete([]byte("alpha")))

	got, err := m.Stat()
	require.NoError(t, err)

	// Segment offsets follow directly from the sizing inputs: 128-byte
	// header, one 8-byte flags word for 16 buckets, 16 slot offsets, 4
	// freelist offsets.
	want := shmhash.Stat{
		MemorySize:    4096,
		MaxBuckets:    16,
		MaxFreeBlocks: 4,

		UsedBuckets:    1,
		UsedFreeBlocks: 1,
		// alpha: 16 + 5 + 1 + 2 = 24 bytes; beta: 16 + 4 + 2 + 2 = 24.
		// Deletion reclaims into the freelist without moving the tail.
		UsedData: 48,

		BucketFlagsOffset: 128,
		BucketsOffset:     136,
		FreelistOffset:    264,
		DataOffset:        296,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Stat mismatch (-want +got):\n%s", diff)
	}
}

func Test_Stat_OnFreshMap_IsAllZeroUsage(t *testing.T) {
	t.Parallel()

	m, err := shmhash.Init(shmhash.Options{
		Path:       filepath.Join(t.TempDir(), "region.shm"),
		MemorySize: 4096,
	})
	require.NoError(t, err)
	defer m.Destroy()

	st, err := m.Stat()
	require.NoError(t, err)
	require.Zero(t, st.UsedBuckets)
	require.Zero(t, st.UsedFreeBlocks)
	require.Zero(t, st.UsedData)
	require.EqualValues(t, 4096, st.MemorySize)
}
