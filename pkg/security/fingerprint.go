package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strings"

	"github.com/brickingsoft/errors"
	utls "github.com/refraction-networking/utls"
)

// Fingerprinted runs the handshake with utls so the ClientHello matches a browser.
type Fingerprinted struct {
	HelloID utls.ClientHelloID
	// ALPN replaces the protocols the preset advertises. Presets offer h2 by default.
	ALPN []string
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
}

func (engine Fingerprinted) Handshake(ctx context.Context, conn net.Conn, serverName string, roots *x509.CertPool) (Session, error) {
	config := &utls.Config{
		ServerName:         serverName,
		RootCAs:            roots,
		InsecureSkipVerify: engine.InsecureSkipVerify,
		NextProtos:         engine.ALPN,
	}
	uc, err := engine.client(conn, config)
	if err != nil {
		return nil, handshakeFailed(serverName, err)
	}
	if err = uc.HandshakeContext(ctx); err != nil {
		return nil, handshakeFailed(serverName, err)
	}
	return &fingerprintedSession{UConn: uc}, nil
}

func (engine Fingerprinted) client(conn net.Conn, config *utls.Config) (*utls.UConn, error) {
	if len(engine.ALPN) == 0 {
		return utls.UClient(conn, config, engine.HelloID), nil
	}
	spec, specErr := utls.UTLSIdToSpec(engine.HelloID)
	if specErr != nil {
		// randomized ids have no static spec
		return utls.UClient(conn, config, engine.HelloID), nil
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = engine.ALPN
		}
	}
	uc := utls.UClient(conn, config, utls.HelloCustom)
	if err := uc.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return uc, nil
}

type fingerprintedSession struct {
	*utls.UConn
}

func (s *fingerprintedSession) State() State {
	cs := s.UConn.ConnectionState()
	return State{
		Version:            cs.Version,
		CipherSuite:        cs.CipherSuite,
		NegotiatedProtocol: cs.NegotiatedProtocol,
		ServerName:         cs.ServerName,
		HandshakeComplete:  cs.HandshakeComplete,
		DidResume:          cs.DidResume,
		PeerCertificates:   cs.PeerCertificates,
	}
}

// ParseFingerprint maps a browser name to a ClientHello preset. "none" and the empty
// string report ok=false, meaning crypto/tls should be used.
func ParseFingerprint(name string) (id utls.ClientHelloID, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "go", "std":
		return
	case "chrome":
		id = utls.HelloChrome_Auto
	case "firefox":
		id = utls.HelloFirefox_Auto
	case "safari":
		id = utls.HelloSafari_Auto
	case "ios":
		id = utls.HelloIOS_Auto
	case "edge":
		id = utls.HelloEdge_Auto
	case "randomized", "random":
		id = utls.HelloRandomized
	default:
		err = errors.New(
			"unknown tls fingerprint",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta("fingerprint", name),
		)
		return
	}
	ok = true
	return
}

// ParseEngine returns the engine for a fingerprint name, crypto/tls when there is none.
func ParseEngine(name string, alpn ...string) (Engine, error) {
	id, ok, err := ParseFingerprint(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(alpn) > 0 {
			return Standard{Config: &tls.Config{NextProtos: alpn}}, nil
		}
		return Standard{}, nil
	}
	return Fingerprinted{HelloID: id, ALPN: alpn}, nil
}
