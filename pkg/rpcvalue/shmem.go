package rpcvalue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPlatform is returned by NewShmem and OpenShmem on any GOOS
// other than Linux, where no mapping is created. The serializers encode and
// decode Shmem metadata (fd, offset, size) on every platform, decoding
// through BorrowedShmem, and never return this error.
var ErrUnsupportedPlatform = errors.New("rpcvalue: Shmem is unsupported on this platform")

// shmValue holds the fields of a Shmem value: fd + offset + size, plus the
// live mapping and whether this Value owns (and must munmap/close) it.
type shmValue struct {
	fd     int
	offset uint64
	size   uint64
	data   []byte
	owned  bool
}

// BorrowedShmem wraps fd+offset+size metadata carried over the wire without
// mapping it: a serializer decoding a Shmem value from bytes has no
// descriptor to map until the transport layer hands it a real fd via
// FD_PASSING (spec §6.1), so the decoded Value starts unmapped
// (ShmemBytes returns nil) and never owns fd or mapping on release.
func BorrowedShmem(fd int, offset, size uint64) *Value {
	v := newValue(KindShmem)
	v.shm = &shmValue{fd: fd, offset: offset, size: size}
	return v
}

// ShmemFd returns the backing descriptor. Panics if Kind() != KindShmem.
func (v *Value) ShmemFd() int { v.mustKind(KindShmem); return v.shm.fd }

// ShmemOffset returns the mapping offset. Panics if Kind() != KindShmem.
func (v *Value) ShmemOffset() uint64 { v.mustKind(KindShmem); return v.shm.offset }

// ShmemSize returns the mapping size. Panics if Kind() != KindShmem.
func (v *Value) ShmemSize() uint64 { v.mustKind(KindShmem); return v.shm.size }

// ShmemBytes returns the live mapped region. Panics if Kind() != KindShmem.
func (v *Value) ShmemBytes() []byte { v.mustKind(KindShmem); return v.shm.data }

func (v *Value) equalShmem(other *Value) bool {
	return v.shm.fd == other.shm.fd && v.shm.offset == other.shm.offset && v.shm.size == other.shm.size
}

func (v *Value) describeShmem(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%s<shmem> fd=%d offset=%d size=%d", indent, v.shm.fd, v.shm.offset, v.shm.size)
}

func (v *Value) releaseShmem() {
	if v.shm == nil {
		return
	}
	releaseShmemPlatform(v.shm)
}
