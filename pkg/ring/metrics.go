package ring

import (
	"syscall"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the collectors an instrumented substrate reports to.
type Metrics struct {
	Prepared    *prometheus.CounterVec
	Completions *prometheus.CounterVec
	InFlight    prometheus.Gauge
	Wait        prometheus.Histogram
}

// NewMetrics registers the substrate collectors on reg, reusing collectors that an earlier
// connection already registered there.
func NewMetrics(reg prometheus.Registerer) (m *Metrics, err error) {
	m = &Metrics{
		Prepared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riotls",
			Subsystem: "ring",
			Name:      "prepared_total",
			Help:      "Operations placed on the submission queue.",
		}, []string{"op"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riotls",
			Subsystem: "ring",
			Name:      "completions_total",
			Help:      "Completions observed, by operation class and status.",
		}, []string{"op", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riotls",
			Subsystem: "ring",
			Name:      "in_flight",
			Help:      "Operations prepared but not yet completed.",
		}),
		Wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riotls",
			Subsystem: "ring",
			Name:      "wait_seconds",
			Help:      "Time spent blocked waiting for a completion.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	if m.Prepared, err = register(reg, m.Prepared); err != nil {
		return
	}
	if m.Completions, err = register(reg, m.Completions); err != nil {
		return
	}
	if m.InFlight, err = register(reg, m.InFlight); err != nil {
		return
	}
	m.Wait, err = register(reg, m.Wait)
	return
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Instrument wraps s so that every prepare, completion and wait is counted. Operations that
// leave the substrate without a completion (retired, or dropped when it goes idle or closes)
// are taken off the in-flight gauge too.
func Instrument(s Substrate, m *Metrics) Substrate {
	return &instrumented{
		Substrate: s,
		metrics:   m,
	}
}

type instrumented struct {
	Substrate
	metrics *Metrics
	tracked []*Submission
}

func (s *instrumented) prepared(sub *Submission, err error) (*Submission, error) {
	if err == nil {
		s.metrics.Prepared.WithLabelValues(sub.op.String()).Inc()
		s.metrics.InFlight.Inc()
		s.tracked = append(s.tracked, sub)
	}
	return sub, err
}

// settle drops the tracked operations for which done reports true off the in-flight gauge.
func (s *instrumented) settle(done func(sub *Submission) bool) {
	kept := s.tracked[:0]
	for _, sub := range s.tracked {
		if done(sub) {
			s.metrics.InFlight.Dec()
			continue
		}
		kept = append(kept, sub)
	}
	clear(s.tracked[len(kept):])
	s.tracked = kept
}

func (s *instrumented) PrepareConnect(tag tags.Tag, fd int, sa syscall.Sockaddr) (*Submission, error) {
	return s.prepared(s.Substrate.PrepareConnect(tag, fd, sa))
}

func (s *instrumented) PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (*Submission, error) {
	return s.prepared(s.Substrate.PrepareWritev(tag, fd, b))
}

func (s *instrumented) PrepareRecv(tag tags.Tag, fd int, b []byte) (*Submission, error) {
	return s.prepared(s.Substrate.PrepareRecv(tag, fd, b))
}

func (s *instrumented) PrepareClose(tag tags.Tag, fd int) (*Submission, error) {
	return s.prepared(s.Substrate.PrepareClose(tag, fd))
}

func (s *instrumented) Wait(deadline time.Time) (c Completion, err error) {
	start := time.Now()
	c, err = s.Substrate.Wait(deadline)
	s.metrics.Wait.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case IsIdle(err):
			s.settle(func(*Submission) bool { return true })
		case IsTimeout(err):
			s.settle(func(sub *Submission) bool {
				if sub.Retired() {
					s.metrics.Completions.WithLabelValues(sub.tag.Class().String(), "timeout").Inc()
					return true
				}
				return false
			})
		}
		return
	}
	matched := false
	s.settle(func(sub *Submission) bool {
		if !matched && sub.tag == c.Tag {
			matched = true
			return true
		}
		return false
	})
	s.metrics.Completions.WithLabelValues(c.Tag.Class().String(), status(c)).Inc()
	return
}

func (s *instrumented) Close() error {
	s.settle(func(*Submission) bool { return true })
	return s.Substrate.Close()
}

// status labels a completion with "ok", the name of a common socket errno, or "error".
func status(c Completion) string {
	if c.OK() {
		return "ok"
	}
	switch errno := syscall.Errno(-c.Res); errno {
	case syscall.EINTR:
		return "EINTR"
	case syscall.EAGAIN:
		return "EAGAIN"
	case syscall.ECANCELED:
		return "ECANCELED"
	case syscall.ECONNREFUSED:
		return "ECONNREFUSED"
	case syscall.ECONNRESET:
		return "ECONNRESET"
	case syscall.ECONNABORTED:
		return "ECONNABORTED"
	case syscall.EPIPE:
		return "EPIPE"
	case syscall.ETIMEDOUT:
		return "ETIMEDOUT"
	case syscall.EHOSTUNREACH:
		return "EHOSTUNREACH"
	case syscall.ENETUNREACH:
		return "ENETUNREACH"
	default:
		return "error"
	}
}
