package shmhash

import "sort"

// noFreeBlock is the sentinel returned by findFreeBlock when no block of
// sufficient size exists.
const noFreeBlock = ^uint64(0)

// freelistEntry returns the arena offset stored at freelist index i.
func (r *region) freelistEntry(h header, i uint64) uint64 {
	return leUint64(r.data[h.FreelistOffset+i*8:])
}

func (r *region) setFreelistEntry(h header, i, offset uint64) {
	putLeUint64(r.data[h.FreelistOffset+i*8:], offset)
}

// blockSize returns the stored size (payload + 8-byte prefix) of the free
// block at the given arena offset.
func (r *region) blockSize(offset uint64) uint64 {
	return decodeFreeBlockSize(r.data[offset:])
}

func (r *region) setBlockSize(offset, size uint64) {
	encodeFreeBlockSize(r.data[offset:], size)
}

// addFreeBlock inserts a free block of payloadSize bytes at offset into the
// sorted freelist, merging with an adjacent block when possible. Mutates h
// in place (NumFreeBlocks) and the freelist/arena bytes; the caller is
// responsible for persisting h back to the header.
//
// Requires h.NumFreeBlocks < h.MaxFreeBlocks and payloadSize >= 8.
func (r *region) addFreeBlock(h *header, offset, payloadSize uint64) Code {
	if h.NumFreeBlocks >= h.MaxFreeBlocks || payloadSize < freeBlockHeaderSize {
		return NoEmptyFreeBlock
	}

	storedSize := payloadSize + freeBlockHeaderSize

	num := int(h.NumFreeBlocks)
	left := sort.Search(num, func(i int) bool {
		return r.blockSize(r.freelistEntry(*h, uint64(i))) >= storedSize
	})

	if left < num {
		candidateOffset := r.freelistEntry(*h, uint64(left))
		if candidateOffset == offset+storedSize {
			combined := storedSize + r.blockSize(candidateOffset)
			r.setBlockSize(offset, combined)
			r.setFreelistEntry(*h, uint64(left), offset)
			r.bubbleRight(*h, left)

			return OK
		}
	}

	for i := num; i > left; i-- {
		r.setFreelistEntry(*h, uint64(i), r.freelistEntry(*h, uint64(i-1)))
	}

	r.setFreelistEntry(*h, uint64(left), offset)
	r.setBlockSize(offset, storedSize)
	h.NumFreeBlocks++

	return OK
}

// bubbleRight restores sorted order after the entry at idx had its size
// increased by a merge in addFreeBlock.
func (r *region) bubbleRight(h header, idx int) {
	for idx+1 < int(h.NumFreeBlocks) {
		cur := r.freelistEntry(h, uint64(idx))
		next := r.freelistEntry(h, uint64(idx+1))

		if r.blockSize(next) >= r.blockSize(cur) {
			break
		}

		r.setFreelistEntry(h, uint64(idx), next)
		r.setFreelistEntry(h, uint64(idx+1), cur)
		idx++
	}
}

// findFreeBlock locates and removes a block of at least required bytes,
// splitting off a remainder block when there's room for one. Returns
// noFreeBlock if no block is large enough, or if the only candidate's
// remainder can't be re-inserted (too small to form a free block of its
// own, or the freelist has no room for the split tail) - in both refusal
// cases the freelist is left untouched. Mutates h.NumFreeBlocks on success.
func (r *region) findFreeBlock(h *header, required uint64) uint64 {
	num := int(h.NumFreeBlocks)
	idx := sort.Search(num, func(i int) bool {
		return r.blockSize(r.freelistEntry(*h, uint64(i))) >= required
	})

	if idx == num {
		return noFreeBlock
	}

	offset := r.freelistEntry(*h, uint64(idx))
	blockSize := r.blockSize(offset)
	remainder := blockSize - required

	if remainder == 0 {
		r.removeFreelistEntry(h, idx)

		return offset
	}

	// The tail can only be re-inserted if it is big enough to be a valid
	// free block itself (8-byte size prefix + 8-byte minimum payload) and
	// the freelist has room to hold it.
	if remainder < 2*freeBlockHeaderSize || h.NumFreeBlocks >= h.MaxFreeBlocks {
		return noFreeBlock
	}

	r.removeFreelistEntry(h, idx)
	r.addFreeBlock(h, offset+required, remainder-freeBlockHeaderSize)

	return offset
}

// placeRecord prefers tail allocation when the arena's tail has room,
// otherwise falls back to the freelist.
// Mutates h.DataTail (tail path) or h.NumFreeBlocks (freelist path, via
// findFreeBlock). Returns ok=false if neither source can supply required
// bytes.
func (r *region) placeRecord(h *header, required uint64) (uint64, bool) {
	if h.MemorySize-h.DataTail >= required {
		offset := h.DataTail
		h.DataTail += required

		return offset, true
	}

	offset := r.findFreeBlock(h, required)
	if offset == noFreeBlock {
		return 0, false
	}

	return offset, true
}

func (r *region) removeFreelistEntry(h *header, idx int) {
	num := int(h.NumFreeBlocks)
	for i := idx; i+1 < num; i++ {
		r.setFreelistEntry(*h, uint64(i), r.freelistEntry(*h, uint64(i+1)))
	}

	h.NumFreeBlocks--
}
