package shmhash

// Layout describes the computed sizes and offsets of every region
// segment, the result of [CalcRequiredMemorySize].
type Layout struct {
	MemorySize    uint64
	MaxBuckets    uint64
	MaxFreeBlocks uint64

	MaxBucketFlags    uint64 // number of 64-bit words in the bitmap
	BucketFlagsOffset uint64
	BucketsOffset     uint64
	FreelistOffset    uint64
	DataOffset        uint64

	// RecordSize and DataSize are advisory: RecordSize is only meaningful
	// when record_kv_size was supplied (exact) or memory_size was supplied
	// (derived, advisory only).
	RecordSize uint64
	DataSize   uint64
}

// CalcRequiredMemorySize computes the region layout for the given sizing
// inputs.
//
//   - If maxBuckets == 0: requires memorySize > 0, derives
//     maxBuckets = (memorySize/4)/8.
//   - If maxFreeBlocks == 0: set to maxBuckets.
//   - If recordKVSize > 0: data_size = record_size * max_buckets, where
//     record_size = record_header + 2 + recordKVSize, and this is added to
//     the total memory size (growing it beyond memorySize if needed).
//   - Else if memorySize > 0: data_size = max(0, memorySize - fixed_overhead),
//     record_size = data_size / (record_header + 2) (advisory only).
//
// Returns [MemorySizeTooSmall] if both memorySize and maxBuckets are zero.
func CalcRequiredMemorySize(memorySize, maxBuckets, maxFreeBlocks, recordKVSize uint64) (Layout, error) {
	if maxBuckets == 0 {
		if memorySize == 0 {
			return Layout{}, MemorySizeTooSmall.Err()
		}

		maxBuckets = (memorySize / 4) / 8
		if maxBuckets == 0 {
			return Layout{}, MemorySizeTooSmall.Err()
		}
	}

	if maxBuckets > maxBucketsLimit {
		return Layout{}, MemorySizeTooSmall.Err()
	}

	if maxFreeBlocks == 0 {
		maxFreeBlocks = maxBuckets
	}

	if maxFreeBlocks > maxFreeBlocksLimit {
		return Layout{}, MemorySizeTooSmall.Err()
	}

	maxBucketFlags := (maxBuckets + 63) / 64

	bucketFlagsOffset := uint64(headerSize)
	bucketsOffset := bucketFlagsOffset + maxBucketFlags*8
	freelistOffset := bucketsOffset + maxBuckets*8
	// Each freelist entry stores a single 8-byte arena offset; block
	// sizes live with the blocks themselves, not in this array.
	dataOffset := freelistOffset + maxFreeBlocks*8

	fixedOverhead := dataOffset

	var (
		recordSize uint64
		dataSize   uint64
	)

	switch {
	case recordKVSize > 0:
		recordSize = recordHeaderSize + 2 + recordKVSize
		dataSize = recordSize * maxBuckets
	case memorySize > 0:
		if memorySize > fixedOverhead {
			dataSize = memorySize - fixedOverhead
		}

		recordSize = dataSize / (recordHeaderSize + 2)
	}

	total := fixedOverhead + dataSize
	if total < memorySize {
		total = memorySize
	}

	total = alignUp(total, 8)

	if total > maxRegionSize {
		return Layout{}, MemorySizeTooSmall.Err()
	}

	return Layout{
		MemorySize:        total,
		MaxBuckets:        maxBuckets,
		MaxFreeBlocks:     maxFreeBlocks,
		MaxBucketFlags:    maxBucketFlags,
		BucketFlagsOffset: bucketFlagsOffset,
		BucketsOffset:     bucketsOffset,
		FreelistOffset:    freelistOffset,
		DataOffset:        dataOffset,
		RecordSize:        recordSize,
		DataSize:          dataSize,
	}, nil
}

func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}
