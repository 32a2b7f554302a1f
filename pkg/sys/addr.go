package sys

import (
	"net/netip"
	"syscall"
	"unsafe"

	"github.com/brickingsoft/errors"
)

// Family returns the socket family able to reach addr.
func Family(addr netip.AddrPort) int {
	if addr.Addr().Unmap().Is4() {
		return syscall.AF_INET
	}
	return syscall.AF_INET6
}

func AddrPortToSockaddr(addr netip.AddrPort) (sa syscall.Sockaddr, err error) {
	if !addr.IsValid() {
		err = errors.New(
			"address is invalid",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
		return
	}
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		sa = &syscall.SockaddrInet4{
			Port: int(addr.Port()),
			Addr: ip.As4(),
		}
		return
	}
	sa6 := &syscall.SockaddrInet6{
		Port: int(addr.Port()),
		Addr: ip.As16(),
	}
	if zone := ip.Zone(); zone != "" {
		sa6.ZoneId = zoneID(zone)
	}
	sa = sa6
	return
}

func SockaddrToAddrPort(sa syscall.Sockaddr) netip.AddrPort {
	switch s := sa.(type) {
	case *syscall.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port))
	case *syscall.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(s.Addr), uint16(s.Port))
	default:
		return netip.AddrPort{}
	}
}

// SockaddrToRaw lays sa out the way the kernel reads it from a connect submission.
func SockaddrToRaw(sa syscall.Sockaddr) (name *syscall.RawSockaddrAny, nameLen int32, err error) {
	switch s := sa.(type) {
	case *syscall.SockaddrInet4:
		name = &syscall.RawSockaddrAny{}
		raw := (*syscall.RawSockaddrInet4)(unsafe.Pointer(name))
		raw.Family = syscall.AF_INET
		p := (*[2]byte)(unsafe.Pointer(&raw.Port))
		p[0] = byte(s.Port >> 8)
		p[1] = byte(s.Port)
		raw.Addr = s.Addr
		nameLen = int32(unsafe.Sizeof(*raw))
		return
	case *syscall.SockaddrInet6:
		name = &syscall.RawSockaddrAny{}
		raw := (*syscall.RawSockaddrInet6)(unsafe.Pointer(name))
		raw.Family = syscall.AF_INET6
		p := (*[2]byte)(unsafe.Pointer(&raw.Port))
		p[0] = byte(s.Port >> 8)
		p[1] = byte(s.Port)
		raw.Scope_id = s.ZoneId
		raw.Addr = s.Addr
		nameLen = int32(unsafe.Sizeof(*raw))
		return
	default:
		err = errors.New(
			"invalid address type",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
		return
	}
}

// RawToAddrPort reads back an inet sockaddr produced by SockaddrToRaw or by the kernel.
func RawToAddrPort(rsa *syscall.RawSockaddrAny) netip.AddrPort {
	switch rsa.Addr.Family {
	case syscall.AF_INET:
		pp := (*syscall.RawSockaddrInet4)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		return netip.AddrPortFrom(netip.AddrFrom4(pp.Addr), uint16(p[0])<<8|uint16(p[1]))
	case syscall.AF_INET6:
		pp := (*syscall.RawSockaddrInet6)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&pp.Port))
		return netip.AddrPortFrom(netip.AddrFrom16(pp.Addr), uint16(p[0])<<8|uint16(p[1]))
	default:
		return netip.AddrPort{}
	}
}
