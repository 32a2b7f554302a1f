// Package security holds the TLS collaborators of a connection: trust roots and the engines
// that run a client handshake over a synchronous net.Conn.
package security

import (
	"context"
	"crypto/x509"
	"io"
	"net"

	"github.com/brickingsoft/errors"
)

var (
	ErrHandshakeFailure = errors.Define("tls handshake failure")
	ErrNoTrustRoots     = errors.Define("no trust roots loaded")
)

func IsHandshakeFailure(err error) bool {
	return errors.Is(err, ErrHandshakeFailure)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "security"

	errMetaOpKey        = "op"
	errMetaOpHandshake  = "handshake"
	errMetaOpTrustRoots = "trust_roots"
)

// State is the negotiated session summary shared by every engine.
type State struct {
	Version            uint16
	CipherSuite        uint16
	NegotiatedProtocol string
	ServerName         string
	HandshakeComplete  bool
	DidResume          bool
	PeerCertificates   []*x509.Certificate
}

// Session
// 握手完成后的 TLS 会话。
//
// Close 在发送 close_notify 后关闭底层连接。
type Session interface {
	io.ReadWriteCloser
	State() State
}

// Engine
// TLS 引擎。
//
// conn 是同步形态的能力对象，引擎在握手与后续读写中只通过它收发字节。
type Engine interface {
	Handshake(ctx context.Context, conn net.Conn, serverName string, roots *x509.CertPool) (Session, error)
}

func handshakeFailed(serverName string, cause error) error {
	return errors.From(
		ErrHandshakeFailure,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpHandshake),
		errors.WithMeta("server_name", serverName),
		errors.WithWrap(cause),
	)
}
