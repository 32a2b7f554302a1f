//go:build !linux

package sys

import (
	"net/netip"

	"github.com/brickingsoft/errors"
)

type SocketFactory interface {
	Socket(family int) (fd int, err error)
	ShutdownRead(fd int) error
}

type Sockets struct {
	NoDelay bool
}

func (s Sockets) Socket(int) (int, error) {
	return -1, errors.New(
		"sockets are only supported on linux",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpSocket),
	)
}

func (s Sockets) ShutdownRead(int) error {
	return nil
}

func LocalAddr(int) (netip.AddrPort, error) {
	return netip.AddrPort{}, nil
}

func Shutdown(int) error {
	return nil
}

func ShutdownRead(int) error {
	return nil
}

func Close(int) error {
	return nil
}
