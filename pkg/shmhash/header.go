package shmhash

import "encoding/binary"

// Fixed 128-byte region header. All multi-byte fields are little-endian
// and stored at fixed offsets so any process mapping the same region sees
// an identical layout regardless of Go struct layout decisions.
const (
	headerMagic   = "SHMHASH1"
	headerVersion = 1
	headerSize    = 128
)

const (
	offMagic             = 0x00 // [8]byte
	offVersion           = 0x08 // uint32
	offReserved0         = 0x0C // uint32
	offMemorySize        = 0x10 // uint64
	offMaxBucketFlags    = 0x18 // uint64
	offMaxBuckets        = 0x20 // uint64
	offMaxFreeBlocks     = 0x28 // uint64
	offNumFreeBlocks     = 0x30 // uint64
	offBucketFlagsOffset = 0x38 // uint64
	offBucketsOffset     = 0x40 // uint64
	offFreelistOffset    = 0x48 // uint64
	offDataOffset        = 0x50 // uint64
	offDataTail          = 0x58 // uint64
	// 0x60..0x80 reserved, implicitly zero.
)

// header is the in-memory view of the region's fixed header fields. It
// is never held across a lock boundary - every accessor re-reads and
// re-writes the mapped bytes directly.
type header struct {
	MemorySize        uint64
	MaxBucketFlags    uint64
	MaxBuckets        uint64
	MaxFreeBlocks     uint64
	NumFreeBlocks     uint64
	BucketFlagsOffset uint64
	BucketsOffset     uint64
	FreelistOffset    uint64
	DataOffset        uint64
	DataTail          uint64
}

func encodeHeader(buf []byte, h header) {
	copy(buf[offMagic:], headerMagic)
	binary.LittleEndian.PutUint32(buf[offVersion:], headerVersion)
	binary.LittleEndian.PutUint64(buf[offMemorySize:], h.MemorySize)
	binary.LittleEndian.PutUint64(buf[offMaxBucketFlags:], h.MaxBucketFlags)
	binary.LittleEndian.PutUint64(buf[offMaxBuckets:], h.MaxBuckets)
	binary.LittleEndian.PutUint64(buf[offMaxFreeBlocks:], h.MaxFreeBlocks)
	binary.LittleEndian.PutUint64(buf[offNumFreeBlocks:], h.NumFreeBlocks)
	binary.LittleEndian.PutUint64(buf[offBucketFlagsOffset:], h.BucketFlagsOffset)
	binary.LittleEndian.PutUint64(buf[offBucketsOffset:], h.BucketsOffset)
	binary.LittleEndian.PutUint64(buf[offFreelistOffset:], h.FreelistOffset)
	binary.LittleEndian.PutUint64(buf[offDataOffset:], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[offDataTail:], h.DataTail)
}

func decodeHeader(buf []byte) header {
	return header{
		MemorySize:        binary.LittleEndian.Uint64(buf[offMemorySize:]),
		MaxBucketFlags:    binary.LittleEndian.Uint64(buf[offMaxBucketFlags:]),
		MaxBuckets:        binary.LittleEndian.Uint64(buf[offMaxBuckets:]),
		MaxFreeBlocks:     binary.LittleEndian.Uint64(buf[offMaxFreeBlocks:]),
		NumFreeBlocks:     binary.LittleEndian.Uint64(buf[offNumFreeBlocks:]),
		BucketFlagsOffset: binary.LittleEndian.Uint64(buf[offBucketFlagsOffset:]),
		BucketsOffset:     binary.LittleEndian.Uint64(buf[offBucketsOffset:]),
		FreelistOffset:    binary.LittleEndian.Uint64(buf[offFreelistOffset:]),
		DataOffset:        binary.LittleEndian.Uint64(buf[offDataOffset:]),
		DataTail:          binary.LittleEndian.Uint64(buf[offDataTail:]),
	}
}

func validMagic(buf []byte) bool {
	return string(buf[offMagic:offMagic+8]) == headerMagic &&
		binary.LittleEndian.Uint32(buf[offVersion:]) == headerVersion
}

// recordHeaderSize is the fixed portion of a record: hash + key_size + value_size.
const recordHeaderSize = 8 + 4 + 4

func encodeRecordHeader(buf []byte, hash uint64, keySize, valueSize uint32) {
	binary.LittleEndian.PutUint64(buf[0:], hash)
	binary.LittleEndian.PutUint32(buf[8:], keySize)
	binary.LittleEndian.PutUint32(buf[12:], valueSize)
}

func decodeRecordHeader(buf []byte) (hash uint64, keySize, valueSize uint32) {
	hash = binary.LittleEndian.Uint64(buf[0:])
	keySize = binary.LittleEndian.Uint32(buf[8:])
	valueSize = binary.LittleEndian.Uint32(buf[12:])

	return hash, keySize, valueSize
}

// recordFootprint returns the total arena bytes a record with the given
// key/value sizes occupies: header + key + NUL + value + NUL.
func recordFootprint(keySize, valueSize uint32) uint64 {
	return recordHeaderSize + uint64(keySize) + 1 + uint64(valueSize) + 1
}

// freeBlockHeaderSize is the size-prefix every free block carries at its
// offset: the block's total size (including this prefix), 8 bytes.
const freeBlockHeaderSize = 8

func encodeFreeBlockSize(buf []byte, size uint64) {
	binary.LittleEndian.PutUint64(buf, size)
}

func decodeFreeBlockSize(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
