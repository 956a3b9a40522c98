package shmhash

// Hardcoded implementation limits.
//
// These exist to keep offset arithmetic safely inside uint64/int range and
// to bound resource usage for configurations this package does not exercise
// in tests. All limit violations are treated as configuration errors;
// callers pass a valid [Options] or get [MemorySizeTooSmall].
const (
	// maxRegionSize bounds the total size of a region. This is a safety
	// guardrail, not a RAM limit - mmap does not fault in the whole
	// region up front - but syscall.Mmap takes the length as a platform
	// int, so the region must stay comfortably inside int range.
	maxRegionSize = uint64(1) << 40

	// maxBucketsLimit bounds max_buckets so max_buckets*8 cannot overflow
	// a platform int when computing the bucket slot array size.
	maxBucketsLimit = uint64(1) << 32

	// maxFreeBlocksLimit bounds max_free_blocks the same way
	// maxBucketsLimit bounds the bucket array.
	maxFreeBlocksLimit = uint64(1) << 32
)
