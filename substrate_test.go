package riotls_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"net/netip"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/stretchr/testify/require"
)

// scripted is a substrate that runs each submission against a loopback TCP connection
// when it is waited for, and records how many submissions were live at once.
type scripted struct {
	mu sync.Mutex

	target string
	conn   net.Conn

	connectResults []int32
	writeLimit     int
	writeEINTR     int
	recvEINTR      int
	closeFault     error

	pending  []*ring.Submission
	queue    []*ring.Submission
	live     int
	maxLive  int
	ops      []ring.Op
	closed   bool
	closedFd int
}

func newScripted(target string) *scripted {
	return &scripted{target: target}
}

func (s *scripted) factory(...ring.Option) (ring.Substrate, error) {
	return s, nil
}

func (s *scripted) prepare(sub *ring.Submission) (*ring.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ring.ErrClosed
	}
	s.pending = append(s.pending, sub)
	s.live++
	s.maxLive = max(s.maxLive, s.live)
	s.ops = append(s.ops, sub.Op())
	return sub, nil
}

func (s *scripted) PrepareConnect(tag tags.Tag, fd int, _ syscall.Sockaddr) (*ring.Submission, error) {
	return s.prepare(ring.NewSubmission(tag, ring.OpConnect, fd, nil, nil))
}

func (s *scripted) PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (*ring.Submission, error) {
	return s.prepare(ring.NewSubmission(tag, ring.OpWritev, fd, b, nil))
}

func (s *scripted) PrepareRecv(tag tags.Tag, fd int, b []byte) (*ring.Submission, error) {
	return s.prepare(ring.NewSubmission(tag, ring.OpRecv, fd, nil, b))
}

func (s *scripted) PrepareClose(tag tags.Tag, fd int) (*ring.Submission, error) {
	return s.prepare(ring.NewSubmission(tag, ring.OpClose, fd, nil, nil))
}

func (s *scripted) Submit(sub *ring.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sub.MarkSubmitted(); err != nil {
		return err
	}
	s.queue = append(s.queue, s.pending...)
	s.pending = s.pending[:0]
	return nil
}

func (s *scripted) Wait(deadline time.Time) (c ring.Completion, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return c, ring.ErrIdle
	}
	sub := s.queue[0]
	s.queue = s.queue[1:]
	s.live--
	c.Tag = sub.Tag()
	switch sub.Op() {
	case ring.OpConnect:
		if len(s.connectResults) > 0 {
			c.Res = s.connectResults[0]
			s.connectResults = s.connectResults[1:]
			if c.Res < 0 {
				return
			}
		}
		conn, dialErr := net.Dial("tcp", s.target)
		if dialErr != nil {
			c.Res = -int32(syscall.ECONNREFUSED)
			return
		}
		s.conn = conn
	case ring.OpWritev:
		if s.writeEINTR > 0 {
			s.writeEINTR--
			c.Res = -int32(syscall.EINTR)
			return
		}
		p := sub.Buffers().Flatten()
		if s.writeLimit > 0 && len(p) > s.writeLimit {
			p = p[:s.writeLimit]
		}
		_ = s.conn.SetWriteDeadline(deadline)
		n, writeErr := s.conn.Write(p)
		if writeErr != nil {
			return c, s.fault(writeErr)
		}
		c.Res = int32(n)
	case ring.OpRecv:
		if s.recvEINTR > 0 {
			s.recvEINTR--
			c.Res = -int32(syscall.EINTR)
			return
		}
		_ = s.conn.SetReadDeadline(deadline)
		n, readErr := s.conn.Read(sub.Received(sub.Bytes()))
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return c, s.fault(readErr)
		}
		c.Res = int32(n)
	case ring.OpClose:
		if s.closeFault != nil {
			return c, s.closeFault
		}
		s.closedFd = sub.Fd()
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
	}
	return
}

func (s *scripted) fault(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ring.ErrTimeout
	}
	return err
}

func (s *scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
	}
	return nil
}

func (s *scripted) MaxLive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLive
}

func (s *scripted) Ops() []ring.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ring.Op(nil), s.ops...)
}

type fakeSockets struct {
	next int
}

func (f *fakeSockets) Socket(int) (int, error) {
	f.next++
	return 1000 + f.next, nil
}

func (f *fakeSockets) ShutdownRead(int) error {
	return nil
}

type staticResolver []netip.AddrPort

func (r staticResolver) Resolve(context.Context, string, uint16) ([]netip.AddrPort, error) {
	return r, nil
}

func selfSigned(t *testing.T, names ...string) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: names[0]},
		DNSNames:              names,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

// echoServer accepts TLS connections and echoes every byte back until the peer closes.
func echoServer(t *testing.T, cert tls.Certificate) string {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}(conn)
		}
	}()
	return ln.Addr().String()
}
