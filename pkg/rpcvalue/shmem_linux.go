//go:build linux

package rpcvalue

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NewShmem allocates an anonymous mapping of the requested size via
// memfd_create+mmap and returns a Value adopting it (spec §4.1: "Shmem
// allocates an anonymous mapping of the requested size and returns a handle
// carrying fd+offset+size").
func NewShmem(size uint64) (*Value, error) {
	fd, err := unix.MemfdCreate("librpc-shmem", 0)
	if err != nil {
		return nil, fmt.Errorf("rpcvalue: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rpcvalue: ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("rpcvalue: mmap: %w", err)
	}
	v := newValue(KindShmem)
	v.shm = &shmValue{fd: fd, offset: 0, size: size, data: data, owned: true}
	return v, nil
}

// OpenShmem wraps an existing fd+offset+size region received from a peer
// (e.g. over a transport advertising FD_PASSING), mapping it read-write.
// The Value owns the mapping but not the descriptor.
func OpenShmem(fd int, offset, size uint64) (*Value, error) {
	data, err := unix.Mmap(fd, int64(offset), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("rpcvalue: mmap: %w", err)
	}
	v := newValue(KindShmem)
	v.shm = &shmValue{fd: fd, offset: offset, size: size, data: data, owned: false}
	return v, nil
}

func releaseShmemPlatform(s *shmValue) {
	if s.data != nil {
		_ = unix.Munmap(s.data)
	}
	if s.owned {
		_ = unix.Close(s.fd)
	}
}
