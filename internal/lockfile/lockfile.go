// Package lockfile implements a process-shared reader-writer lock backed
// by flock(2) on a dedicated lock file.
//
// flock locks an inode, not a pathname: every process that opens the same
// lock file path participates in the same lock, which is what makes the
// lock shareable across processes without placing any synchronization
// state inside the memory region it protects. Shared (read) and exclusive
// (write) modes map directly onto LOCK_SH and LOCK_EX.
//
// Callers must not replace or unlink the lock file while locks may be
// held by other processes; the one legitimate unlink happens during
// region teardown, under the exclusive lock, after which no process can
// attach anyway.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
)

// ErrWouldBlock is returned by [RWLock.TryLock] when another process (or
// another handle in this process) holds a conflicting lock.
var ErrWouldBlock = errors.New("lockfile: lock would block")

const lockFilePerm = 0o600

// RWLock is a handle to a flock(2)-based reader-writer lock at a fixed
// path. The zero value is not usable; construct with [New].
//
// RWLock itself holds no kernel state: each Lock/RLock call opens its own
// descriptor, so independent guards from the same RWLock contend with each
// other exactly like guards from different processes do.
type RWLock struct {
	path string

	// flock is swappable for tests that need to inject syscall failures.
	flock func(fd int, how int) error
}

// New returns an RWLock coordinating on the lock file at path. The file is
// created on first acquisition if it does not exist.
func New(path string) *RWLock {
	return &RWLock{path: path, flock: syscall.Flock}
}

// Path returns the lock file path this RWLock coordinates on.
func (l *RWLock) Path() string {
	return l.path
}

// Lock acquires the lock in exclusive (writer) mode, blocking in the
// kernel until no other shared or exclusive holder remains. There is no
// timeout; a writer that dies while holding the lock releases it when the
// kernel closes its descriptors, but a live holder that never releases
// blocks forever.
func (l *RWLock) Lock() (*Guard, error) {
	return l.acquire(syscall.LOCK_EX, os.O_RDWR)
}

// RLock acquires the lock in shared (reader) mode, blocking until no
// exclusive holder remains. Any number of shared holders may coexist.
func (l *RWLock) RLock() (*Guard, error) {
	return l.acquire(syscall.LOCK_SH, os.O_RDONLY)
}

// TryLock attempts to acquire the exclusive lock without blocking,
// returning [ErrWouldBlock] if any holder exists.
func (l *RWLock) TryLock() (*Guard, error) {
	return l.acquire(syscall.LOCK_EX|syscall.LOCK_NB, os.O_RDWR)
}

func (l *RWLock) acquire(how, openFlag int) (*Guard, error) {
	f, err := os.OpenFile(l.path, openFlag|os.O_CREATE, lockFilePerm)
	if err != nil {
		return nil, fmt.Errorf("lockfile: opening %q: %w", l.path, err)
	}

	if err := flockRetryEINTR(l.flock, int(f.Fd()), how); err != nil {
		_ = f.Close()

		if isWouldBlock(err) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("lockfile: flock %q: %w", l.path, err)
	}

	return &Guard{file: f, flock: l.flock}, nil
}

// Guard represents a held lock. Releasing it is the caller's job via
// [Guard.Close]; dropping a Guard without closing leaks a descriptor until
// the process exits (at which point the kernel releases the lock anyway).
type Guard struct {
	mu    sync.Mutex
	file  *os.File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying descriptor. Close is
// idempotent; calls after the first return nil.
//
// Closing the descriptor alone would release the flock on every mainstream
// Unix, but the explicit LOCK_UN first keeps the release visible to anyone
// tracing the process and costs one cheap syscall.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		return nil
	}

	fd := int(g.file.Fd())
	unlockErr := flockRetryEINTR(g.flock, fd, syscall.LOCK_UN)
	closeErr := g.file.Close()
	g.file = nil

	if unlockErr != nil {
		return fmt.Errorf("lockfile: unlocking: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("lockfile: closing lock fd: %w", closeErr)
	}

	return nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
}

// flockRetryEINTR retries flock when a signal interrupts it. The retry cap
// exists only to avoid spinning forever under a pathological signal storm;
// in practice it is never reached.
func flockRetryEINTR(flock func(fd int, how int) error, fd, how int) error {
	const maxRetries = 10000

	var err error
	for range maxRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}
