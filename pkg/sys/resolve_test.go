package sys_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetResolver_Literal(t *testing.T) {
	r := sys.NetResolver{}
	addrs, err := r.Resolve(context.Background(), "127.0.0.1", 443)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:443")}, addrs)

	addrs, err = r.Resolve(context.Background(), "[::1]", 8443)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{netip.MustParseAddrPort("[::1]:8443")}, addrs)
}

func TestNetResolver_Failure(t *testing.T) {
	r := sys.NetResolver{}
	_, err := r.Resolve(context.Background(), "", 443)
	require.Error(t, err)
	assert.True(t, sys.IsDNSLookupFailure(err))

	_, err = r.Resolve(context.Background(), "name.invalid", 443)
	require.Error(t, err)
	assert.True(t, sys.IsDNSLookupFailure(err))
}

func TestASCIIHost(t *testing.T) {
	host, err := sys.ASCIIHost("bücher.example")
	require.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva.example", host)
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := sys.SplitHostPort("example.com:8443", 443)
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, uint16(8443), port)

	host, port, err = sys.SplitHostPort("example.com", 443)
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, uint16(443), port)

	_, _, err = sys.SplitHostPort("example.com", 0)
	assert.Error(t, err)
}
