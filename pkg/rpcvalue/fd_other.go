//go:build !unix

package rpcvalue

import "errors"

// errFdUnsupported is returned by dupFd and closeFd on GOOS values that
// are not unix.
var errFdUnsupported = errors.New("rpcvalue: fd duplication requires a unix platform")

func dupFd(fd int) (*Value, error) {
	return nil, errFdUnsupported
}

func closeFd(fd int) error {
	return errFdUnsupported
}
