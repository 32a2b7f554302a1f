package sys

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/brickingsoft/errors"
	"golang.org/x/net/idna"
)

// Resolver turns a host and port into the ordered list of addresses to try.
type Resolver interface {
	Resolve(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error)
}

// NetResolver resolves through net.Resolver after converting internationalized names to ASCII.
type NetResolver struct {
	Resolver *net.Resolver
	// Network is "ip", "ip4" or "ip6". Empty means "ip".
	Network string
}

func (r NetResolver) Resolve(ctx context.Context, host string, port uint16) (addrs []netip.AddrPort, err error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		err = lookupFailure(host, errors.New("missing host"))
		return
	}
	if ip, parseErr := netip.ParseAddr(strings.Trim(host, "[]")); parseErr == nil {
		addrs = append(addrs, netip.AddrPortFrom(ip.Unmap(), port))
		return
	}
	ascii, asciiErr := ASCIIHost(host)
	if asciiErr != nil {
		err = lookupFailure(host, asciiErr)
		return
	}
	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	network := r.Network
	if network == "" {
		network = "ip"
	}
	ips, lookupErr := resolver.LookupNetIP(ctx, network, ascii)
	if lookupErr != nil {
		err = lookupFailure(host, lookupErr)
		return
	}
	for _, ip := range ips {
		addrs = append(addrs, netip.AddrPortFrom(ip.Unmap(), port))
	}
	if len(addrs) == 0 {
		err = lookupFailure(host, errors.New("ip is not found by host"))
		return
	}
	return
}

func lookupFailure(host string, cause error) error {
	return errors.From(
		ErrDNSLookupFailure,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpResolve),
		errors.WithMeta(errMetaHostKey, host),
		errors.WithWrap(cause),
	)
}

// ASCIIHost converts an internationalized host name to its ASCII (punycode) form.
func ASCIIHost(host string) (string, error) {
	return idna.Lookup.ToASCII(host)
}

// SplitHostPort splits address, falling back to defaultPort when address carries none.
func SplitHostPort(address string, defaultPort uint16) (host string, port uint16, err error) {
	address = strings.TrimSpace(address)
	h, p, splitErr := net.SplitHostPort(address)
	if splitErr != nil {
		if defaultPort == 0 {
			err = splitErr
			return
		}
		host = strings.Trim(address, "[]")
		port = defaultPort
		return
	}
	n, parseErr := strconv.ParseUint(p, 10, 16)
	if parseErr != nil {
		err = parseErr
		return
	}
	host, port = h, uint16(n)
	return
}
