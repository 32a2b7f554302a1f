//go:build linux

package ring_test

import (
	"testing"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := ring.NewMetrics(reg)
	require.NoError(t, err)
	again, err := ring.NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, m.Prepared, again.Prepared)

	base, err := ring.New(ring.KindBlocking)
	require.NoError(t, err)
	s := ring.Instrument(base, m)
	defer s.Close()

	a, _ := socketpair(t)
	sub, err := s.PrepareWritev(tags.Pack(tags.ClassWrite, 1), a, iovec.Buffers{[]byte("ping")})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	require.NoError(t, s.Submit(sub))
	_, err = s.Wait(time.Now().Add(time.Second))
	require.NoError(t, err)
	_ = sub.Release()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Prepared.WithLabelValues("writev")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("write", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestInstrument_Settle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := ring.NewMetrics(reg)
	require.NoError(t, err)
	base, err := ring.New(ring.KindBlocking)
	require.NoError(t, err)
	s := ring.Instrument(base, m)

	_, b := socketpair(t)
	sub, err := s.PrepareRecv(tags.Pack(tags.ClassRead, 1), b, make([]byte, 8))
	require.NoError(t, err)
	require.NoError(t, s.Submit(sub))
	_, err = s.Wait(time.Now().Add(20 * time.Millisecond))
	require.True(t, ring.IsTimeout(err))
	require.NoError(t, sub.Release())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("read", "timeout")))

	// prepared but never completed
	_, err = s.PrepareRecv(tags.Pack(tags.ClassRead, 2), b, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	require.NoError(t, s.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestInstrument_StatusLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := ring.NewMetrics(reg)
	require.NoError(t, err)
	base, err := ring.New(ring.KindBlocking)
	require.NoError(t, err)
	s := ring.Instrument(base, m)
	defer s.Close()

	sub, err := s.PrepareRecv(tags.Pack(tags.ClassRead, 1), -1, make([]byte, 8))
	require.NoError(t, err)
	require.NoError(t, s.Submit(sub))
	c, err := s.Wait(time.Time{})
	require.NoError(t, err)
	require.False(t, c.OK())
	require.NoError(t, sub.Release())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("read", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}
