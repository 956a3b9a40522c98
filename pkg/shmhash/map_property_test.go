package shmhash_test

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/shmhash/internal/oracle"
	"github.com/calvinalkan/shmhash/pkg/shmhash"
	"github.com/stretchr/testify/require"
)

// This file contains the state-model property tests: identical randomized
// operation sequences are applied to a deliberately simple in-memory model
// and to the real engine, and the observable results must match.
//
// The model has no notion of arena geometry, so capacity errors
// (NO_SPACE, NO_EMPTY_BUCKET, NO_EMPTY_FREE_BLOCK) are not predicted by
// it; instead, whenever the real engine refuses an operation, the harness
// asserts the refusal was a capacity code and that the engine's state is
// observably unchanged - which is exactly the atomicity contract every
// operation carries.

func Test_Map_Matches_Model_Property(t *testing.T) {
	t.Parallel()

	const (
		seedCount  = 25
		opsPerSeed = 300
	)

	for i := 0; i < seedCount; i++ {
		seed := int64(i + 1)

		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			t.Parallel()

			m := newPropertyMap(t)
			rng := rand.New(rand.NewSource(seed))
			model := oracle.New()

			for op := 0; op < opsPerSeed; op++ {
				applyRandomOp(t, rng, m, model)
				checkModelAgreement(t, m, model)
			}
		})
	}
}

func newPropertyMap(t *testing.T) *shmhash.Map {
	t.Helper()

	// Deliberately tight: small arena whose tail never moves back, small
	// freelist, and more distinct keys (40) than buckets (32), so sequences
	// regularly hit every capacity error as well as the happy paths.
	m, err := shmhash.Init(shmhash.Options{
		Path:          filepath.Join(t.TempDir(), "region.shm"),
		MemorySize:    2048,
		MaxBuckets:    32,
		MaxFreeBlocks: 8,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Destroy() })

	return m
}

func randomKey(rng *rand.Rand) []byte {
	return []byte(fmt.Sprintf("key-%02d", rng.Intn(40)))
}

func randomValue(rng *rand.Rand) []byte {
	v := make([]byte, rng.Intn(24))
	for i := range v {
		v[i] = byte(rng.Intn(256))
	}

	return v
}

func isCapacityError(err error) bool {
	switch shmhash.CodeOf(err) {
	case shmhash.NoSpace, shmhash.NoEmptyBucket, shmhash.NoEmptyFreeBlock:
		return true
	default:
		return false
	}
}

func applyRandomOp(t *testing.T, rng *rand.Rand, m *shmhash.Map, model *oracle.Oracle) {
	t.Helper()

	key := randomKey(rng)

	switch rng.Intn(10) {
	case 0, 1, 2, 3, 4: // insert-heavy mix
		value := randomValue(rng)

		err := m.Insert(key, value)
		if err != nil {
			require.True(t, isCapacityError(err), "Insert(%q): unexpected error %v", key, err)

			// A refused insert must leave the previous binding (or
			// absence) observable.
			assertKeyMatchesModel(t, m, model, key)

			return
		}

		model.Set(key, value)

	case 5, 6, 7: // delete
		err := m.Delete(key)

		switch {
		case err == nil:
			require.True(t, model.Delete(key), "Delete(%q) succeeded but model has no such key", key)
		case shmhash.CodeOf(err) == shmhash.NotFound:
			require.False(t, model.Delete(key), "Delete(%q) says NotFound but model has the key", key)
		default:
			require.True(t, isCapacityError(err), "Delete(%q): unexpected error %v", key, err)
			assertKeyMatchesModel(t, m, model, key)
		}

	default: // search
		assertKeyMatchesModel(t, m, model, key)
	}
}

func assertKeyMatchesModel(t *testing.T, m *shmhash.Map, model *oracle.Oracle, key []byte) {
	t.Helper()

	got, err := m.Search(key)
	want, ok := model.Get(key)

	if !ok {
		require.ErrorIs(t, err, shmhash.ErrNotFound, "Search(%q): model says absent", key)

		return
	}

	require.NoError(t, err, "Search(%q): model says present", key)
	require.Equal(t, want, got, "Search(%q): stale or wrong value", key)
}

// checkModelAgreement verifies the global invariants after every step:
// every model key resolves to its latest value, the live-key count equals
// the bucket-flag popcount, and the header counters stay inside their
// bounds.
func checkModelAgreement(t *testing.T, m *shmhash.Map, model *oracle.Oracle) {
	t.Helper()

	st, err := m.Stat()
	require.NoError(t, err)

	require.EqualValues(t, model.Len(), st.UsedBuckets, "bucket-flag popcount must equal live key count")
	require.LessOrEqual(t, st.UsedFreeBlocks, st.MaxFreeBlocks)
	require.LessOrEqual(t, st.DataOffset+st.UsedData, st.MemorySize)

	for _, key := range model.Keys() {
		assertKeyMatchesModel(t, m, model, key)
	}
}
