//go:build linux

package sys

import (
	"net/netip"
	"os"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// SocketFactory creates the stream socket a connection is driven on.
// The socket is only created here; connecting it happens through the substrate.
// ShutdownRead stops the receive side of fd so that a receive blocked on it completes
// with zero bytes while the send side keeps working.
type SocketFactory interface {
	Socket(family int) (fd int, err error)
	ShutdownRead(fd int) error
}

// Sockets is the default factory: a close-on-exec TCP socket with Nagle disabled.
type Sockets struct {
	NoDelay bool
}

func (s Sockets) Socket(family int) (fd int, err error) {
	fd, err = unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		err = errors.New(
			"create socket failed",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSocket),
			errors.WithWrap(os.NewSyscallError("socket", err)),
		)
		return
	}
	if s.NoDelay {
		if err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			_ = unix.Close(fd)
			fd = -1
			err = errors.New(
				"create socket failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpSocket),
				errors.WithWrap(os.NewSyscallError("setsockopt", err)),
			)
			return
		}
	}
	return
}

func (s Sockets) ShutdownRead(fd int) error {
	return ShutdownRead(fd)
}

// LocalAddr reads the address the kernel bound fd to.
func LocalAddr(fd int) (addr netip.AddrPort, err error) {
	sa, saErr := unix.Getsockname(fd)
	if saErr != nil {
		err = os.NewSyscallError("getsockname", saErr)
		return
	}
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		addr = netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port))
	case *unix.SockaddrInet6:
		addr = netip.AddrPortFrom(netip.AddrFrom16(s.Addr).Unmap(), uint16(s.Port))
	}
	return
}

// Shutdown stops both directions of fd so that operations pending on it complete.
func Shutdown(fd int) error {
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil && err != unix.ENOTCONN {
		return os.NewSyscallError("shutdown", err)
	}
	return nil
}

// ShutdownRead stops the receive side of fd only.
func ShutdownRead(fd int) error {
	if err := unix.Shutdown(fd, unix.SHUT_RD); err != nil && err != unix.ENOTCONN {
		return os.NewSyscallError("shutdown", err)
	}
	return nil
}

// Close closes fd directly, bypassing the substrate.
func Close(fd int) error {
	return os.NewSyscallError("close", unix.Close(fd))
}
