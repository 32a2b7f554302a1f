package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
)

// Standard runs the handshake with crypto/tls.
type Standard struct {
	Config *tls.Config
}

func (engine Standard) Handshake(ctx context.Context, conn net.Conn, serverName string, roots *x509.CertPool) (Session, error) {
	var config *tls.Config
	if engine.Config != nil {
		config = engine.Config.Clone()
	} else {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	if config.RootCAs == nil {
		config.RootCAs = roots
	}
	tc := tls.Client(conn, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, handshakeFailed(config.ServerName, err)
	}
	return &standardSession{Conn: tc}, nil
}

type standardSession struct {
	*tls.Conn
}

func (s *standardSession) State() State {
	cs := s.Conn.ConnectionState()
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
