package security_test

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brickingsoft/riotls/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func roots(srv *httptest.Server) *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return pool
}

func roundTrip(t *testing.T, engine security.Engine, srv *httptest.Server) security.State {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := engine.Handshake(ctx, conn, "example.com", roots(srv))
	require.NoError(t, err)
	defer session.Close()

	_, err = io.WriteString(session, "GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")
	require.NoError(t, err)
	body, err := io.ReadAll(session)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(body), "pong"))
	return session.State()
}

func TestStandard_Handshake(t *testing.T) {
	srv := newServer(t)
	state := roundTrip(t, security.Standard{}, srv)
	assert.True(t, state.HandshakeComplete)
	assert.Equal(t, "example.com", state.ServerName)
	assert.NotEmpty(t, state.PeerCertificates)
}

func TestFingerprinted_Handshake(t *testing.T) {
	srv := newServer(t)
	engine, err := security.ParseEngine("chrome", "http/1.1")
	require.NoError(t, err)
	require.IsType(t, security.Fingerprinted{}, engine)
	state := roundTrip(t, engine, srv)
	assert.True(t, state.HandshakeComplete)
	assert.Equal(t, "http/1.1", state.NegotiatedProtocol)
}

func TestStandard_UnknownAuthority(t *testing.T) {
	srv := newServer(t)
	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = security.Standard{}.Handshake(context.Background(), conn, "example.com", x509.NewCertPool())
	require.Error(t, err)
	assert.True(t, security.IsHandshakeFailure(err))
}

func TestParseFingerprint(t *testing.T) {
	_, ok, err := security.ParseFingerprint("none")
	require.NoError(t, err)
	assert.False(t, ok)
	for _, name := range []string{"chrome", "Firefox", "safari", "ios", "edge", "randomized"} {
		_, ok, err = security.ParseFingerprint(name)
		require.NoError(t, err, name)
		assert.True(t, ok, name)
	}
	_, _, err = security.ParseFingerprint("netscape")
	assert.Error(t, err)

	engine, err := security.ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, security.Standard{}, engine)
}

func TestLoadTrustRoots(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(good, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: srv.Certificate().Raw,
	}), 0o600))
	pool, err := security.LoadTrustRoots(good)
	require.NoError(t, err)
	require.NotNil(t, pool)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	_, err = security.LoadTrustRoots(bad)
	assert.Error(t, err)

	_, err = security.LoadTrustRoots(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}
