package stream_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/stream"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	prepared []iovec.Buffers
	full     bool
}

func (r *recorder) PrepareConnect(tags.Tag, int, syscall.Sockaddr) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (r *recorder) PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (*ring.Submission, error) {
	if r.full {
		return nil, ring.ErrQueueExhausted
	}
	r.prepared = append(r.prepared, b)
	return ring.NewSubmission(tag, ring.OpWritev, fd, b, nil), nil
}

func (r *recorder) PrepareRecv(tags.Tag, int, []byte) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (r *recorder) PrepareClose(tags.Tag, int) (*ring.Submission, error) {
	return nil, ring.ErrUnsupported
}

func (r *recorder) Submit(*ring.Submission) error { return nil }

func (r *recorder) Wait(time.Time) (ring.Completion, error) { return ring.Completion{}, ring.ErrIdle }

func (r *recorder) Close() error { return nil }

func TestWriter_Write(t *testing.T) {
	cases := []iovec.Buffers{
		{[]byte("a")},
		{[]byte("hello"), []byte(" "), []byte("world")},
		{nil, []byte("x"), {}, make([]byte, 4096)},
	}
	for _, b := range cases {
		var slot *ring.Submission
		w := stream.NewWriter(&recorder{}, 3, tags.NewMonotonic(), &slot)
		n, err := w.Write(b)
		require.NoError(t, err)
		assert.Equal(t, b.Len(), n)
		require.NotNil(t, slot)
		assert.Equal(t, b.Len(), slot.Bytes())
		assert.Equal(t, tags.ClassWrite, slot.Tag().Class())
		assert.Equal(t, 3, slot.Fd())
		require.NoError(t, slot.Release())
	}
}

func TestWriter_Empty(t *testing.T) {
	var slot *ring.Submission
	rec := &recorder{}
	w := stream.NewWriter(rec, 3, tags.Fixed{}, &slot)
	n, err := w.Write(iovec.Buffers{nil, {}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, slot)
	assert.Empty(t, rec.prepared)
}

func TestWriter_SingleInFlight(t *testing.T) {
	var slot *ring.Submission
	rec := &recorder{}
	w := stream.NewWriter(rec, 3, tags.Fixed{}, &slot)
	_, err := w.Write(iovec.Buffers{[]byte("one")})
	require.NoError(t, err)
	first := slot

	_, err = w.Write(iovec.Buffers{[]byte("two")})
	require.Error(t, err)
	assert.True(t, stream.IsSubmissionInFlight(err))
	assert.Same(t, first, slot)
	assert.Len(t, rec.prepared, 1)

	require.NoError(t, first.Release())
	_, err = w.Write(iovec.Buffers{[]byte("two")})
	require.NoError(t, err)
	assert.NotSame(t, first, slot)
}

func TestWriter_QueueExhausted(t *testing.T) {
	var slot *ring.Submission
	alloc := tags.NewMonotonic()
	w := stream.NewWriter(&recorder{full: true}, 3, alloc, &slot)
	n, err := w.Write(iovec.Buffers{[]byte("abc")})
	require.Error(t, err)
	assert.True(t, ring.IsQueueExhausted(err))
	assert.Equal(t, 0, n)
	assert.Nil(t, slot)

	arena := tags.NewArena(1)
	held := arena.Allocate(tags.ClassRead)
	require.NotEqual(t, tags.None, held)
	w = stream.NewWriter(&recorder{}, 3, arena, &slot)
	_, err = w.Write(iovec.Buffers{[]byte("abc")})
	assert.True(t, ring.IsQueueExhausted(err))
}
