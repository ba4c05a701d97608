//go:build !linux

package rpcvalue

// NewShmem is unsupported outside Linux; see ErrUnsupportedPlatform.
func NewShmem(size uint64) (*Value, error) {
	return nil, ErrUnsupportedPlatform
}

// OpenShmem is unsupported outside Linux; see ErrUnsupportedPlatform.
func OpenShmem(fd int, offset, size uint64) (*Value, error) {
	return nil, ErrUnsupportedPlatform
}

func releaseShmemPlatform(s *shmValue) {}
