package sys_test

import (
	"net/netip"
	"syscall"
	"testing"

	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrPortToSockaddr(t *testing.T) {
	v4 := netip.MustParseAddrPort("127.0.0.1:443")
	sa, err := sys.AddrPortToSockaddr(v4)
	require.NoError(t, err)
	assert.IsType(t, &syscall.SockaddrInet4{}, sa)
	assert.Equal(t, syscall.AF_INET, sys.Family(v4))
	assert.Equal(t, v4, sys.SockaddrToAddrPort(sa))

	v6 := netip.MustParseAddrPort("[2001:db8::1]:8443")
	sa, err = sys.AddrPortToSockaddr(v6)
	require.NoError(t, err)
	assert.IsType(t, &syscall.SockaddrInet6{}, sa)
	assert.Equal(t, syscall.AF_INET6, sys.Family(v6))

	mapped := netip.MustParseAddrPort("[::ffff:10.0.0.1]:80")
	assert.Equal(t, syscall.AF_INET, sys.Family(mapped))

	_, err = sys.AddrPortToSockaddr(netip.AddrPort{})
	assert.Error(t, err)
}

func TestSockaddrToRaw(t *testing.T) {
	for _, s := range []string{"192.168.1.20:9000", "[fe80::1]:443"} {
		addr := netip.MustParseAddrPort(s)
		sa, err := sys.AddrPortToSockaddr(addr)
		require.NoError(t, err)
		raw, rawLen, rawErr := sys.SockaddrToRaw(sa)
		require.NoError(t, rawErr)
		assert.Greater(t, rawLen, int32(0))
		assert.Equal(t, addr, sys.RawToAddrPort(raw))
	}
	_, _, err := sys.SockaddrToRaw(&syscall.SockaddrUnix{Name: "/tmp/x"})
	assert.Error(t, err)
}
