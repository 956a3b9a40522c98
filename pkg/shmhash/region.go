package shmhash

import (
	"fmt"
	"os"
	"syscall"
)

// region is the thin wrapper around the mmap'd bytes backing a Map. Every
// accessor in buckets.go/freelist.go/record.go operates on region-relative
// byte offsets into r.data, never on cached absolute addresses: offsets
// are translated lazily on each access so the structure is valid no
// matter where the mapping lands in a given process's address space.
type region struct {
	data []byte
}

// readHeader decodes the fixed header from the start of the region.
func (r *region) readHeader() header {
	return decodeHeader(r.data[:headerSize])
}

// writeHeader persists h back to the region's fixed header bytes.
func (r *region) writeHeader(h header) {
	encodeHeader(r.data[:headerSize], h)
}

// createRegion creates a new shared mapping of size bytes backed by the
// file at path. The file is created exclusively (O_EXCL) so two processes
// racing Init on the same path don't silently clobber each other - the
// second caller gets a plain os.IsExist error, which the facade surfaces
// as MapFailed.
//
// Backing the mapping with a real file (rather than a MAP_ANONYMOUS region
// only shareable via fork) is what lets an unrelated process attach to the
// same region by path later - see [attachRegion].
func createRegion(path string, size uint64) (*region, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, err
	}

	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return nil, nil, err
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)

		return nil, nil, err
	}

	return &region{data: data}, f, nil
}

// attachRegion maps an existing region created by another process's (or an
// earlier) [createRegion] call, without taking ownership of it: the
// returned handle cannot [Map.Destroy] the region.
func attachRegion(path string) (*region, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, nil, err
	}

	size := info.Size()
	if size < headerSize || !validMagic(mustPeek(f, size)) {
		_ = f.Close()

		return nil, nil, fmt.Errorf("shmhash: %q is not a valid region file", path)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		_ = f.Close()

		return nil, nil, err
	}

	return &region{data: data}, f, nil
}

// mustPeek reads the leading headerSize bytes of f without disturbing its
// offset, for the magic check in attachRegion. Any read error yields an
// all-zero buffer, which simply fails the magic check.
func mustPeek(f *os.File, fileSize int64) []byte {
	buf := make([]byte, headerSize)
	if fileSize < headerSize {
		return buf
	}

	_, _ = f.ReadAt(buf, 0)

	return buf
}

// releaseRegion unmaps the region and closes the backing file descriptor.
// It does not remove the backing file - callers that own the region do
// that separately once the lock protecting it has been taken exclusively.
func releaseRegion(r *region, f *os.File) error {
	var errs []error

	if err := syscall.Munmap(r.data); err != nil {
		errs = append(errs, err)
	}

	if err := f.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shmhash: releasing region: %v", errs)
	}

	return nil
}
