//go:build !unix

package rpctransport

import (
	"context"
	"errors"
)

var errUnixUnsupported = errors.New("rpctransport(unix): requires a unix platform")

type unixSocket struct{}

// NewUnixSocket returns the unix driver. On non-unix platforms it registers
// under the "unix" scheme but fails every Connect/Listen call.
func NewUnixSocket() Transport { return unixSocket{} }

func (unixSocket) Schemes() []string { return []string{"unix"} }
func (unixSocket) Flags() Flags      { return Credentials | FdPassing }

func (unixSocket) Connect(context.Context, string, map[string]string) (Conn, error) {
	return nil, errUnixUnsupported
}

func (unixSocket) Listen(string, map[string]string) (Listener, error) {
	return nil, errUnixUnsupported
}
