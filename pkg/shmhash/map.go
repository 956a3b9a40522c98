// Package shmhash implements a fixed-capacity, shared-memory hashmap
// engine: a single contiguous region of memory holding a header, a bucket
// array, an inline freelist, and a data arena, with all metadata stored as
// byte offsets so that multiple cooperating processes mapping the same
// region observe identical structure.
//
// Operations are serialized by a reader-writer lock whose synchronization
// object lives outside the region (a dedicated lock file, see
// internal/lockfile) so multiple processes may share it via flock(2).
package shmhash

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/calvinalkan/shmhash/internal/lockfile"
)

// ErrNotOwner is returned by [Map.Destroy] when called from a process (or
// a [Map] handle obtained via [Attach]) that did not create the region.
// It is a permission error distinct from the closed [Code] set: it gates
// the facade operation, not the core engine.
var ErrNotOwner = errors.New("shmhash: destroy called by non-owner")

// Options configures [Init] and [Attach].
type Options struct {
	// Path is the filesystem path backing the shared region. Required.
	// A lock file is created alongside it at Path+".lock".
	Path string

	// MemorySize is the total region size in bytes. May be 0 if
	// MaxBuckets is given.
	MemorySize uint64

	// MaxBuckets is the bucket table capacity. May be 0 to derive it
	// from MemorySize.
	MaxBuckets uint64

	// MaxFreeBlocks is the freelist capacity. Defaults to MaxBuckets when 0.
	MaxFreeBlocks uint64
}

// Map is the facade over a region and its process-shared reader-writer
// lock: the only exported entry point for Insert/Delete/Search/Stat.
//
// A Map obtained from [Init] owns the region and may [Map.Destroy] it. A
// Map obtained from [Attach] shares the same region but is not the owner;
// calling Destroy on it returns [ErrNotOwner] without touching anything.
type Map struct {
	mu sync.Mutex

	path string
	lock *lockfile.RWLock

	region *region
	file   *os.File

	owner   int
	isOwner bool
	closed  bool
}

// Init creates a new region at opts.Path and returns a [Map] that owns it:
// it aligns the requested memory size, computes the region layout, creates
// the backing mapping, and populates the header with data_tail =
// data_offset and num_free_blocks = 0 (the bitmap and bucket slots inherit
// the mapping's zero-fill).
func Init(opts Options) (*Map, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("shmhash: Options.Path is required")
	}

	requested := alignUp(opts.MemorySize, 8)

	layout, err := CalcRequiredMemorySize(requested, opts.MaxBuckets, opts.MaxFreeBlocks, 0)
	if err != nil {
		return nil, err
	}

	if requested > 0 && layout.MemorySize > requested {
		return nil, MemorySizeTooSmall.Err()
	}

	r, f, err := createRegion(opts.Path, layout.MemorySize)
	if err != nil {
		return nil, errf(MapFailed, err)
	}

	lock := lockfile.New(lockPathFor(opts.Path))

	// Probe the lock once at creation so a LOCK_FAILED condition surfaces
	// immediately rather than on the first Insert/Search. The probe also
	// creates the lock file eagerly.
	probe, err := lock.Lock()
	if err != nil {
		_ = releaseRegion(r, f)
		_ = os.Remove(opts.Path)

		return nil, errf(LockFailed, err)
	}

	h := header{
		MemorySize:        layout.MemorySize,
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
	r.writeHeader(h)

	if err := probe.Close(); err != nil {
		_ = releaseRegion(r, f)
		_ = os.Remove(opts.Path)

		return nil, errf(LockFailed, err)
	}

	m := &Map{
		path:    opts.Path,
		lock:    lock,
		region:  r,
		file:    f,
		owner:   os.Getpid(),
		isOwner: true,
	}

	// The OS closes the mapping's descriptor on process exit, but Destroy
	// also unlinks the backing file and the lock file, neither of which
	// happens automatically. The finalizer backstops an owner that never
	// called Destroy explicitly.
	runtime.SetFinalizer(m, (*Map).finalize)

	return m, nil
}

// Attach maps an existing region created by an earlier [Init] call
// (possibly in another process) without taking ownership of it.
func Attach(opts Options) (*Map, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("shmhash: Options.Path is required")
	}

	r, f, err := attachRegion(opts.Path)
	if err != nil {
		return nil, errf(MapFailed, err)
	}

	m := &Map{
		path:    opts.Path,
		lock:    lockfile.New(lockPathFor(opts.Path)),
		region:  r,
		file:    f,
		owner:   os.Getpid(),
		isOwner: false,
	}

	return m, nil
}

func lockPathFor(path string) string {
	return path + ".lock"
}

func (m *Map) finalize() {
	_ = m.Destroy()
}

// Destroy releases the region and its lock.
//
//   - Only the creating [Map] (from [Init]) may destroy; any other handle
//     (from [Attach]) returns [ErrNotOwner] without touching the region.
//   - A second Destroy from the creator is a no-op that reports success.
func (m *Map) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Both halves of the identity check matter: isOwner distinguishes an
	// Init handle from an Attach handle, and the pid comparison catches a
	// handle inherited by a different process.
	if !m.isOwner || m.owner != os.Getpid() {
		return ErrNotOwner
	}

	if m.closed {
		return nil
	}

	guard, err := m.lock.Lock()
	if err != nil {
		return errf(LockFailed, err)
	}

	if err := releaseRegion(m.region, m.file); err != nil {
		_ = guard.Close()

		return errf(MapFailed, err)
	}

	_ = os.Remove(m.path)
	_ = os.Remove(m.lock.Path())

	if err := guard.Close(); err != nil {
		return errf(LockFailed, err)
	}

	m.closed = true
	runtime.SetFinalizer(m, nil)

	return nil
}

// Close releases this handle's view of an attached (non-owning) region.
// Owners should call [Map.Destroy] instead; Close on an owning handle is a
// no-op, since ownership implies exclusive teardown responsibility and an
// owner that wants to stop using the map wants Destroy, not a bare unmap.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isOwner || m.closed {
		return nil
	}

	m.closed = true

	return releaseRegion(m.region, m.file)
}

// Insert stores value under key, creating or overwriting the binding,
// under the exclusive lock. A same-size overwrite happens in place; a
// different-size overwrite places the replacement record first and only
// then releases the old one to the freelist.
func (m *Map) Insert(key, value []byte) error {
	lock, err := m.lock.Lock()
	if err != nil {
		return errf(LockFailed, err)
	}
	defer lock.Close()

	h := m.region.readHeader()
	hash := hashKey(key)
	res := m.region.find(h, hash, key)

	if res.record == nil && res.insertAt == h.MaxBuckets {
		return NoEmptyBucket.Err()
	}

	keySize := uint32(len(key))
	valueSize := uint32(len(value))

	if res.record != nil {
		old := res.record

		if old.valueSize == valueSize {
			m.region.overwriteValue(old.offset, old.keySize, value)

			return nil
		}

		if h.NumFreeBlocks >= h.MaxFreeBlocks {
			return NoEmptyFreeBlock.Err()
		}

		// Place the new record before freeing the old one's space, so
		// a placement failure leaves the old value intact and reachable
		// instead of the key vanishing mid-overwrite.
		required := recordFootprint(keySize, valueSize)

		offset, ok := m.region.placeRecord(&h, required)
		if !ok {
			return NoSpace.Err()
		}

		m.region.writeRecord(offset, hash, key, value)
		m.region.setBucketSlot(h, old.bucket, offset)

		oldFootprint := recordFootprint(old.keySize, old.valueSize)
		m.region.addFreeBlock(&h, old.offset, oldFootprint-freeBlockHeaderSize)

		m.region.writeHeader(h)

		return nil
	}

	required := recordFootprint(keySize, valueSize)

	offset, ok := m.region.placeRecord(&h, required)
	if !ok {
		return NoSpace.Err()
	}

	m.region.writeRecord(offset, hash, key, value)
	m.region.setBucketSlot(h, res.insertAt, offset)
	m.region.setUsed(h, res.insertAt)
	m.region.writeHeader(h)

	return nil
}

// Delete removes key's record under the exclusive lock: the record's
// bytes go back to the freelist and the bucket's used bit is cleared,
// while the slot keeps its stale offset so probes continue past it.
func (m *Map) Delete(key []byte) error {
	lock, err := m.lock.Lock()
	if err != nil {
		return errf(LockFailed, err)
	}
	defer lock.Close()

	h := m.region.readHeader()
	res := m.region.find(h, hashKey(key), key)

	if res.record == nil {
		return NotFound.Err()
	}

	if h.NumFreeBlocks >= h.MaxFreeBlocks {
		return NoEmptyFreeBlock.Err()
	}

	r := res.record
	footprint := recordFootprint(r.keySize, r.valueSize)
	m.region.addFreeBlock(&h, r.offset, footprint-freeBlockHeaderSize)
	m.region.unsetUsed(h, r.bucket)
	m.region.writeHeader(h)

	return nil
}

// Search returns the value stored under key, under the shared lock.
//
// The value is copied out before the lock is released and returned as an
// owned []byte: region bytes are only stable while the lock is held, and
// a caller-visible borrow cannot be kept alive across the lock release
// without unsafe escape hatches.
func (m *Map) Search(key []byte) ([]byte, error) {
	lock, err := m.lock.RLock()
	if err != nil {
		return nil, errf(LockFailed, err)
	}
	defer lock.Close()

	h := m.region.readHeader()
	res := m.region.find(h, hashKey(key), key)

	if res.record == nil {
		return nil, NotFound.Err()
	}

	r := res.record
	value := m.region.recordValue(r.offset, r.keySize, r.valueSize)
	out := make([]byte, len(value))
	copy(out, value)

	return out, nil
}
