package shmhash

// Stat reports a snapshot of region sizing and usage.
type Stat struct {
	MemorySize    uint64
	MaxBuckets    uint64
	MaxFreeBlocks uint64

	UsedBuckets    uint64 // live records, via bitmap popcount
	UsedFreeBlocks uint64 // current num_free_blocks
	UsedData       uint64 // data_tail - data_offset

	BucketFlagsOffset uint64
	BucketsOffset     uint64
	FreelistOffset    uint64
	DataOffset        uint64
}

// Stat takes the shared lock, copies the header sizing fields, counts
// used buckets by popcount over the flags bitmap, and reports
// num_free_blocks and data_tail-data_offset as used-data.
func (m *Map) Stat() (Stat, error) {
	lock, err := m.lock.RLock()
	if err != nil {
		return Stat{}, errf(LockFailed, err)
	}
	defer lock.Close()

	h := m.region.readHeader()

	return Stat{
		MemorySize:        h.MemorySize,
		MaxBuckets:        h.MaxBuckets,
		MaxFreeBlocks:     h.MaxFreeBlocks,
		UsedBuckets:       m.region.popcountUsed(h),
		UsedFreeBlocks:    h.NumFreeBlocks,
		UsedData:          h.DataTail - h.DataOffset,
		BucketFlagsOffset: h.BucketFlagsOffset,
		BucketsOffset:     h.BucketsOffset,
		FreelistOffset:    h.FreelistOffset,
		DataOffset:        h.DataOffset,
	}, nil
}
