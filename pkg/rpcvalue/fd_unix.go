//go:build unix

package rpcvalue

import "golang.org/x/sys/unix"

// dupFd duplicates fd via dup(2) and returns a Value adopting the copy.
func dupFd(fd int) (*Value, error) {
	nfd, err := unix.Dup(fd)
	if err != nil {
		return nil, err
	}
	v := newValue(KindFd)
	v.fd = &fdValue{fd: nfd, owned: true}
	return v, nil
}

// closeFd closes a bare descriptor not wrapped in an *os.File.
func closeFd(fd int) error {
	return unix.Close(fd)
}
