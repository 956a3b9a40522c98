package shmhash

import (
	"bytes"
	"math/bits"
)

// bucketEmpty is the sentinel value a bucket slot holds when it has never
// been written. Offset zero is reserved: the data arena's first usable
// byte is always H.DataOffset, never zero, so zero is safe to use as
// "never used" without colliding with a real record offset.
const bucketEmpty = 0

// bucketSlot returns the arena offset stored at bucket index i.
func (r *region) bucketSlot(h header, i uint64) uint64 {
	return leUint64(r.data[h.BucketsOffset+i*8:])
}

func (r *region) setBucketSlot(h header, i, offset uint64) {
	putLeUint64(r.data[h.BucketsOffset+i*8:], offset)
}

// isUsed reports whether the used-flags bit for bucket i is set.
//
// The bitmap is packed into 64-bit words; the shift operand must be a
// uint64 so indices >= 32 within a word aren't truncated.
func (r *region) isUsed(h header, i uint64) bool {
	word := leUint64(r.data[h.BucketFlagsOffset+(i/64)*8:])

	return word&(uint64(1)<<(i%64)) != 0
}

func (r *region) setUsed(h header, i uint64) {
	off := h.BucketFlagsOffset + (i/64)*8
	word := leUint64(r.data[off:])
	putLeUint64(r.data[off:], word|(uint64(1)<<(i%64)))
}

func (r *region) unsetUsed(h header, i uint64) {
	off := h.BucketFlagsOffset + (i/64)*8
	word := leUint64(r.data[off:])
	putLeUint64(r.data[off:], word&^(uint64(1)<<(i%64)))
}

// popcountUsed counts the set bits across all MaxBucketFlags words of the
// used-flags bitmap, i.e. the number of live records (used by Stat).
func (r *region) popcountUsed(h header) uint64 {
	var n uint64

	for w := uint64(0); w < h.MaxBucketFlags; w++ {
		word := leUint64(r.data[h.BucketFlagsOffset+w*8:])
		n += uint64(bits.OnesCount64(word))
	}

	return n
}

// foundRecord describes a live record located by find, together with the
// bucket index it lives at.
type foundRecord struct {
	offset    uint64
	bucket    uint64
	keySize   uint32
	valueSize uint32
}

// findResult is the outcome of probing the bucket table for a key.
type findResult struct {
	// record is non-nil when the key was found.
	record *foundRecord

	// insertAt is the bucket index a fresh insert should use: the
	// earliest reusable slot seen, whether offset-zero or a tombstone.
	// Equal to MaxBuckets when the table was scanned in full with no
	// reusable slot and no match: "table full".
	insertAt uint64
}

// find walks up to MaxBuckets slots from the key's home slot (hash mod
// MaxBuckets), wrapping. It returns on the first offset-zero slot (probe
// terminates, "not found") or the first slot whose record matches
// (hash, key). Tombstoned slots (offset != 0, used bit clear) never
// terminate the probe but are remembered - the earliest one seen - as
// the insertion candidate, alongside the earliest true offset-zero slot,
// whichever occurs first in probe order.
func (r *region) find(h header, hash uint64, key []byte) findResult {
	maxBuckets := h.MaxBuckets
	home := hash % maxBuckets

	reusable := maxBuckets // sentinel: none found yet
	haveReusable := false

	for step := uint64(0); step < maxBuckets; step++ {
		i := (home + step) % maxBuckets

		offset := r.bucketSlot(h, i)
		if offset == bucketEmpty {
			if !haveReusable {
				reusable = i
			}

			return findResult{record: nil, insertAt: reusable}
		}

		if r.isUsed(h, i) {
			rHash, keySize, valueSize := decodeRecordHeader(r.data[offset:])
			if rHash == hash && uint64(keySize) == uint64(len(key)) &&
				bytes.Equal(r.data[offset+recordHeaderSize:offset+recordHeaderSize+uint64(keySize)], key) {
				return findResult{
					record:   &foundRecord{offset: offset, bucket: i, keySize: keySize, valueSize: valueSize},
					insertAt: i,
				}
			}

			continue
		}

		// Tombstone: offset != 0, used bit clear. Probe continues past
		// it but it's a candidate insertion point.
		if !haveReusable {
			reusable = i
			haveReusable = true
		}
	}

	// Scanned every slot with no offset-zero terminator and no match.
	if haveReusable {
		return findResult{record: nil, insertAt: reusable}
	}

	return findResult{record: nil, insertAt: maxBuckets}
}
