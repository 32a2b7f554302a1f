package adaptor_test

import (
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/rope"
	"github.com/brickingsoft/riotls/pkg/stream"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/brickingsoft/riotls/transport/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type preparer struct{}

func (preparer) PrepareConnect(tags.Tag, int, syscall.Sockaddr) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (preparer) PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (*ring.Submission, error) {
	return ring.NewSubmission(tag, ring.OpWritev, fd, b, nil), nil
}

func (preparer) PrepareRecv(tags.Tag, int, []byte) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (preparer) PrepareClose(tags.Tag, int) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (preparer) Submit(*ring.Submission) error { return nil }

func (preparer) Wait(time.Time) (ring.Completion, error) { return ring.Completion{}, ring.ErrIdle }

func (preparer) Close() error { return nil }

// fakeDriver completes writes into written and serves receives from incoming.
type fakeDriver struct {
	sync.Mutex
	slot          *ring.Submission
	reader        *rope.Reader
	written       []byte
	staged        [][]byte
	incoming      [][]byte
	receives      int
	writeErr      error
	err           error
	readDeadline  time.Time
	writeDeadline time.Time
}

func (d *fakeDriver) Err() error { return d.err }

func (d *fakeDriver) CompleteWrite(deadline time.Time) (int, error) {
	d.writeDeadline = deadline
	sub := d.slot
	defer func() {
		_ = sub.Release()
		d.slot = nil
	}()
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	b := sub.Buffers()
	d.staged = append(d.staged, b...)
	d.written = append(d.written, b.Flatten()...)
	return b.Len(), nil
}

func (d *fakeDriver) Receive(deadline time.Time) error {
	d.readDeadline = deadline
	d.receives++
	if len(d.incoming) == 0 {
		return io.EOF
	}
	next := d.incoming[0]
	d.incoming = d.incoming[1:]
	d.reader.Reset(next)
	return nil
}

func (d *fakeDriver) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (d *fakeDriver) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 443}
}

func newConnection(incoming ...[]byte) (net.Conn, *fakeDriver) {
	d := &fakeDriver{reader: rope.NewReader(nil), incoming: incoming}
	w := stream.NewWriter(preparer{}, 7, tags.NewMonotonic(), &d.slot)
	return adaptor.Connection(w, d.reader, d), d
}

func TestConnection_Read(t *testing.T) {
	conn, d := newConnection([]byte("hello "), []byte{}, []byte("world"))

	b := make([]byte, 4)
	n, err := conn.Read(b)
	require.NoError(t, err)
	assert.Equal(t, "hell", string(b[:n]))
	assert.Equal(t, 1, d.receives)

	n, err = conn.Read(b)
	require.NoError(t, err)
	assert.Equal(t, "o ", string(b[:n]))
	assert.Equal(t, 1, d.receives)

	// an empty completion leaves the reader empty so the loop receives again
	n, err = conn.Read(b)
	require.NoError(t, err)
	assert.Equal(t, "worl", string(b[:n]))
	assert.Equal(t, 3, d.receives)

	rest, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "d", string(rest))
}

func TestConnection_Write(t *testing.T) {
	conn, d := newConnection()

	b := []byte("client hello")
	n, err := conn.Write(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	// the caller reuses its buffer, the submitted bytes must not follow it
	copy(b, "CLIENT HELLO")
	assert.Equal(t, "client hello", string(d.written))
	require.Len(t, d.staged, 1)
	assert.NotSame(t, &b[0], &d.staged[0][0])

	n, err = conn.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, d.staged, 1)
}

func TestConnection_WriteFailure(t *testing.T) {
	conn, d := newConnection()
	d.writeErr = syscall.EPIPE
	_, err := conn.Write([]byte("abc"))
	assert.ErrorIs(t, err, syscall.EPIPE)

	d.writeErr = nil
	d.err = syscall.ECONNRESET
	_, err = conn.Write([]byte("abc"))
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Empty(t, d.written)
}

func TestConnection_Deadlines(t *testing.T) {
	conn, d := newConnection([]byte("x"))
	deadline := time.Now().Add(time.Minute)
	require.NoError(t, conn.SetDeadline(deadline))

	_, err := conn.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.True(t, d.readDeadline.Equal(deadline))
	_, err = conn.Write([]byte("y"))
	require.NoError(t, err)
	assert.True(t, d.writeDeadline.Equal(deadline))

	require.NoError(t, conn.SetWriteDeadline(time.Time{}))
	_, err = conn.Write([]byte("z"))
	require.NoError(t, err)
	assert.True(t, d.writeDeadline.IsZero())
}

func TestConnection_Close(t *testing.T) {
	conn, d := newConnection([]byte("x"))
	assert.Equal(t, "127.0.0.1:443", conn.RemoteAddr().String())
	assert.Equal(t, "127.0.0.1:40000", conn.LocalAddr().String())

	require.NoError(t, conn.Close())
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, net.ErrClosed)
	_, err = conn.Write([]byte("y"))
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.Zero(t, d.receives)
}
