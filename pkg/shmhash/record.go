package shmhash

import "encoding/binary"

// leUint64/putLeUint64 are the shared accessors every offset/size field in
// the region goes through; the region is little-endian throughout, matching
// header.go's encodeHeader/decodeHeader.
func leUint64(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

func putLeUint64(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// writeRecord encodes a full record (header, key, NUL, value, NUL) at
// offset.
func (r *region) writeRecord(offset, hash uint64, key, value []byte) {
	buf := r.data[offset:]
	encodeRecordHeader(buf, hash, uint32(len(key)), uint32(len(value)))

	pos := recordHeaderSize
	pos += copy(buf[pos:], key)
	buf[pos] = 0
	pos++
	pos += copy(buf[pos:], value)
	buf[pos] = 0
}

// recordKey returns the key bytes of the record at offset, given its
// key size (as decoded from the record header).
func (r *region) recordKey(offset uint64, keySize uint32) []byte {
	start := offset + recordHeaderSize

	return r.data[start : start+uint64(keySize)]
}

// recordValue returns the value bytes of the record at offset, given its
// key and value sizes.
func (r *region) recordValue(offset uint64, keySize, valueSize uint32) []byte {
	start := offset + recordHeaderSize + uint64(keySize) + 1

	return r.data[start : start+uint64(valueSize)]
}

// overwriteValue replaces the value bytes (and trailing NUL) of an
// existing record in place. The caller must have already verified the new
// value is the same size as the old one.
func (r *region) overwriteValue(offset uint64, keySize uint32, value []byte) {
	start := offset + recordHeaderSize + uint64(keySize) + 1
	n := copy(r.data[start:], value)
	r.data[start+uint64(n)] = 0
}
