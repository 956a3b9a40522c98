package shmhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestRegion builds a bare region/header pair sized only for freelist
// and bucket exercises, without going through Init's file/lock machinery.
func newTestRegion(t *testing.T, maxBuckets, maxFreeBlocks, arenaSize uint64) (*region, header) {
	t.Helper()

	layout, err := CalcRequiredMemorySize(0, maxBuckets, maxFreeBlocks, 0)
	require.NoError(t, err)

	total := layout.DataOffset + arenaSize
	r := &region{data: make([]byte, total)}

	h := header{
		MemorySize:        total,
		MaxBucketFlags:    layout.MaxBucketFlags,
		MaxBuckets:        layout.MaxBuckets,
		MaxFreeBlocks:     layout.MaxFreeBlocks,
		NumFreeBlocks:     0,
		BucketFlagsOffset: layout.BucketFlagsOffset,
		BucketsOffset:     layout.BucketsOffset,
		FreelistOffset:    layout.FreelistOffset,
		DataOffset:        layout.DataOffset,
		DataTail:          layout.DataOffset,
	}

	return r, h
}

func Test_AddFreeBlock_SortsBySizeAscending(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	// Three disjoint blocks, inserted out of size order.
	require.Equal(t, OK, r.addFreeBlock(&h, h.DataOffset, 32))       // stored 40
	require.Equal(t, OK, r.addFreeBlock(&h, h.DataOffset+100, 8))    // stored 16
	require.Equal(t, OK, r.addFreeBlock(&h, h.DataOffset+200, 16))   // stored 24
	require.EqualValues(t, 3, h.NumFreeBlocks)

	var sizes []uint64
	for i := uint64(0); i < h.NumFreeBlocks; i++ {
		sizes = append(sizes, r.blockSize(r.freelistEntry(h, i)))
	}

	require.True(t, sizes[0] <= sizes[1] && sizes[1] <= sizes[2])
}

func Test_AddFreeBlock_MergesAdjacentBlock(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	// addFreeBlock only ever checks the single candidate at the
	// size-sorted lower-bound index (no second index by offset is
	// maintained), so the merge only fires
	// when the new (smaller-or-equal) block's insertion point by size
	// happens to be the block it's offset-adjacent to. Set up exactly
	// that: X is the sole entry (stored 40) and the new block (stored
	// 16) sits immediately before it.
	x := h.DataOffset + 100
	require.Equal(t, OK, r.addFreeBlock(&h, x, 32)) // X: stored 40

	newOffset := x - 16
	require.Equal(t, OK, r.addFreeBlock(&h, newOffset, 8)) // stored 16, ends exactly at x

	require.EqualValues(t, 1, h.NumFreeBlocks, "adjacent blocks must merge into one entry")

	merged := r.freelistEntry(h, 0)
	require.Equal(t, newOffset, merged)
	require.Equal(t, uint64(16+40), r.blockSize(merged))
}

func Test_AddFreeBlock_RefusesWhenFreelistFull(t *testing.T) {
	r, h := newTestRegion(t, 8, 1, 256)

	require.Equal(t, OK, r.addFreeBlock(&h, h.DataOffset, 32))
	require.Equal(t, NoEmptyFreeBlock, r.addFreeBlock(&h, h.DataOffset+100, 8))
}

func Test_AddFreeBlock_RefusesPayloadBelowEightBytes(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	require.Equal(t, NoEmptyFreeBlock, r.addFreeBlock(&h, h.DataOffset, 4))
}

func Test_FindFreeBlock_ExactMatchRemovesEntry(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	off := h.DataOffset
	require.Equal(t, OK, r.addFreeBlock(&h, off, 32)) // stored 40

	got := r.findFreeBlock(&h, 40)
	require.Equal(t, off, got)
	require.EqualValues(t, 0, h.NumFreeBlocks)
}

func Test_FindFreeBlock_SplitsRemainderBackIntoFreelist(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	off := h.DataOffset
	require.Equal(t, OK, r.addFreeBlock(&h, off, 92)) // stored 100

	got := r.findFreeBlock(&h, 40) // remainder = 60, -8 header = 52 payload
	require.Equal(t, off, got)
	require.EqualValues(t, 1, h.NumFreeBlocks)

	tailOffset := r.freelistEntry(h, 0)
	require.Equal(t, off+40, tailOffset)
	require.Equal(t, uint64(60), r.blockSize(tailOffset))
}

func Test_FindFreeBlock_RefusesWhenRemainderTooSmallForHeader(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	off := h.DataOffset
	// stored size 40; required 37 leaves a remainder of 3, too small to
	// host an 8-byte free-block size header.
	require.Equal(t, OK, r.addFreeBlock(&h, off, 32))

	got := r.findFreeBlock(&h, 37)
	require.Equal(t, noFreeBlock, got)
	require.EqualValues(t, 1, h.NumFreeBlocks, "refused block must be left untouched")
}

func Test_FindFreeBlock_ReturnsSentinelWhenNoBlockLargeEnough(t *testing.T) {
	r, h := newTestRegion(t, 8, 8, 256)

	require.Equal(t, OK, r.addFreeBlock(&h, h.DataOffset, 8))

	got := r.findFreeBlock(&h, 1000)
	require.Equal(t, noFreeBlock, got)
}
