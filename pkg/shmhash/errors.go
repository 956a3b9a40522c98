package shmhash

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of every public [Map] operation.
//
// The zero value, [OK], is success. Every non-OK code is returned wrapped
// in an error so callers can use errors.Is(err, shmhash.ErrNoSpace) etc,
// and [MapFailed]/[LockFailed] additionally wrap the underlying OS error.
type Code uint8

const (
	// OK indicates the operation completed successfully.
	OK Code = iota

	// MapFailed indicates the underlying shared memory mapping could not
	// be created. The wrapped error carries the OS-level cause.
	MapFailed

	// LockFailed indicates the process-shared reader-writer lock could
	// not be acquired or created. The wrapped error carries the OS-level
	// cause. The region is left unmodified.
	LockFailed

	// MemorySizeTooSmall indicates the requested region size cannot hold
	// the computed layout, or both memory_size and max_buckets were zero.
	MemorySizeTooSmall

	// NoSpace indicates the data arena has no room for a record, neither
	// at the tail nor in any freelist entry.
	NoSpace

	// NoEmptyBucket indicates the bucket table has no slot available for
	// a new key (every slot was visited while probing).
	NoEmptyBucket

	// NoEmptyFreeBlock indicates the freelist is full and cannot accept
	// the block being reclaimed by an overwrite or delete.
	NoEmptyFreeBlock

	// NotFound indicates the key does not exist in the map.
	NotFound
)

// String returns a short human-readable name for the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case MapFailed:
		return "MAP_FAILED"
	case LockFailed:
		return "LOCK_FAILED"
	case MemorySizeTooSmall:
		return "MEMORY_SIZE_TOO_SMALL"
	case NoSpace:
		return "NO_SPACE"
	case NoEmptyBucket:
		return "NO_EMPTY_BUCKET"
	case NoEmptyFreeBlock:
		return "NO_EMPTY_FREE_BLOCK"
	case NotFound:
		return "NOT_FOUND"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// codeError adapts a [Code] to the error interface, optionally wrapping
// an underlying cause (used for MapFailed/LockFailed, whose message
// defers to the OS error).
type codeError struct {
	code  Code
	cause error
}

func (e *codeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("shmhash: %s: %v", e.code, e.cause)
	}

	return fmt.Sprintf("shmhash: %s", e.code)
}

func (e *codeError) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, shmhash.ErrNotFound) work when err was produced
// by [Code.Err] - it compares by Code, not by a shared sentinel instance.
func (e *codeError) Is(target error) bool {
	other, ok := target.(*codeError)
	if !ok {
		return false
	}

	return other.code == e.code
}

// Err returns an error for c, or nil if c is [OK].
func (c Code) Err() error {
	if c == OK {
		return nil
	}

	return &codeError{code: c}
}

// errf returns an error for c wrapping cause, or nil if c is [OK].
func errf(c Code, cause error) error {
	if c == OK {
		return nil
	}

	return &codeError{code: c, cause: cause}
}

// CodeOf extracts the [Code] carried by err: [OK] for a nil err or an err
// not produced by this package.
func CodeOf(err error) Code {
	var ce *codeError
	if errors.As(err, &ce) {
		return ce.code
	}

	return OK
}

// Sentinel errors for use with errors.Is, one per [Code]. Declared so
// callers can write errors.Is(err, shmhash.ErrNotFound) without calling
// [CodeOf] first.
var (
	ErrMapFailed          = MapFailed.Err()
	ErrLockFailed         = LockFailed.Err()
	ErrMemorySizeTooSmall = MemorySizeTooSmall.Err()
	ErrNoSpace            = NoSpace.Err()
	ErrNoEmptyBucket      = NoEmptyBucket.Err()
	ErrNoEmptyFreeBlock   = NoEmptyFreeBlock.Err()
	ErrNotFound           = NotFound.Err()
)
