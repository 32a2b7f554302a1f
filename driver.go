package riotls

import (
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/record"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/rope"
	"github.com/brickingsoft/riotls/pkg/stream"
	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/rs/zerolog"
)

const (
	maxTransientRetries = 8
	closeDrainTimeout   = time.Second
)

// driver
// 顺序完成驱动。
//
// 每次提交之后立即阻塞等待该操作的完成事件，任何时刻最多只有一个在途提交。
// 超时或关联标识不匹配的提交被记为 abandoned，其内存保持引用直到 shutdown 时排空；
// 基座已经退役的提交则立即释放。
type driver struct {
	mu        sync.Mutex
	substrate ring.Substrate
	allocator tags.Allocator
	log       zerolog.Logger
	readSize  int

	fd      int
	sockets sys.SocketFactory
	// connected mirrors fd for callers that must not take mu, -1 when there is none
	connected atomic.Int64
	local     net.Addr
	remote    net.Addr

	writer    *stream.Writer
	slot      *ring.Submission
	live      *ring.Submission
	abandoned *ring.Submission

	reader  *rope.Reader
	tracker record.Tracker
	recvBuf []byte

	err    error
	failed atomic.Pointer[error]
	closed bool
}

func newDriver(substrate ring.Substrate, allocator tags.Allocator, log zerolog.Logger, readSize int) *driver {
	d := &driver{
		substrate: substrate,
		allocator: allocator,
		log:       log,
		readSize:  readSize,
		fd:        -1,
		reader:    rope.NewReader(nil),
	}
	d.connected.Store(-1)
	return d
}

func (d *driver) Lock() {
	d.mu.Lock()
}

func (d *driver) Unlock() {
	d.mu.Unlock()
}

// Err is the error that failed the driver, nil while it is healthy.
func (d *driver) Err() error {
	return d.err
}

// failure is Err for callers that do not hold the lock. It never waits for a pending operation.
func (d *driver) failure() error {
	if p := d.failed.Load(); p != nil {
		return *p
	}
	return nil
}

func (d *driver) setErr(err error) {
	d.err = err
	d.failed.Store(&err)
}

// interrupt stops the receive side of the socket without taking the lock, so a receive
// pending under it completes and releases the lock.
func (d *driver) interrupt() {
	fd := int(d.connected.Load())
	if fd < 0 || d.sockets == nil {
		return
	}
	if err := d.sockets.ShutdownRead(fd); err != nil {
		d.log.Debug().Err(err).Msg("interrupt")
	}
}

func (d *driver) LocalAddr() net.Addr {
	return d.local
}

func (d *driver) RemoteAddr() net.Addr {
	return d.remote
}

func (d *driver) fail(err error) {
	if d.err != nil {
		return
	}
	d.setErr(err)
	d.log.Warn().Err(err).Msg("driver failed")
}

// roundTrip submits sub and blocks for exactly one completion, which must carry sub's tag.
func (d *driver) roundTrip(sub *ring.Submission, deadline time.Time) (cqe ring.Completion, err error) {
	if d.live != nil {
		err = errors.From(
			ErrSubmissionInFlight,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaTagKey, d.live.Tag().String()),
		)
		d.fail(err)
		return
	}
	if err = d.substrate.Submit(sub); err != nil {
		d.abandoned = sub
		d.fail(err)
		return
	}
	d.live = sub
	d.log.Debug().
		Stringer("op", sub.Op()).
		Stringer("tag", sub.Tag()).
		Int("bytes", sub.Bytes()).
		Msg("submitted")

	cqe, err = d.substrate.Wait(deadline)
	d.live = nil
	if err != nil {
		if sub.Retired() {
			d.discard(sub)
		} else {
			d.abandoned = sub
		}
		if ring.IsTimeout(err) {
			err = errors.From(
				ErrTimeout,
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, sub.Op().String()),
				errors.WithMeta(errMetaTagKey, sub.Tag().String()),
			)
		}
		d.fail(err)
		return
	}
	if cqe.Tag != sub.Tag() {
		d.abandoned = sub
		err = errors.From(
			ErrUnexpectedCompletion,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpWait),
			errors.WithMeta(errMetaExpectKey, sub.Tag().String()),
			errors.WithMeta(errMetaTagKey, cqe.Tag.String()),
		)
		d.fail(err)
		return
	}
	d.log.Debug().
		Stringer("tag", cqe.Tag).
		Int32("res", cqe.Res).
		Msg("completed")
	d.discard(sub)
	return
}

// discard hands the tag back and unpins the memory of a completed submission.
func (d *driver) discard(sub *ring.Submission) {
	d.allocator.Release(sub.Tag())
	_ = sub.Release()
}

func (d *driver) allocate(class tags.Class) (tag tags.Tag, err error) {
	if tag = d.allocator.Allocate(class); tag == tags.None {
		err = errors.From(
			ErrQueueExhausted,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, class.String()),
		)
	}
	return
}

func statusError(op string, cqe ring.Completion, retries int) error {
	return errors.From(
		ErrUnexpectedStatus,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, op),
		errors.WithMeta(errMetaTagKey, cqe.Tag.String()),
		errors.WithMeta(errMetaRetriesKey, retries),
		errors.WithWrap(os.NewSyscallError(op, cqe.Err())),
	)
}

func transient(err error) bool {
	return err == syscall.EINTR || err == syscall.EAGAIN
}

// connect tries addrs in order. A failed completion closes that socket and moves on;
// the last failure is returned when no address connects.
func (d *driver) connect(addrs []netip.AddrPort, sockets sys.SocketFactory, deadline time.Time) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sockets = sockets
	err = errors.New(
		"no address to connect",
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaOpKey, errMetaOpConnect),
	)
	for _, addr := range addrs {
		log := d.log.With().Stringer(errMetaAddrKey, addr).Logger()
		fd, fdErr := sockets.Socket(sys.Family(addr))
		if fdErr != nil {
			err = fdErr
			log.Warn().Err(err).Msg("create socket failed")
			continue
		}
		sa, saErr := sys.AddrPortToSockaddr(addr)
		if saErr != nil {
			_ = sys.Close(fd)
			err = saErr
			continue
		}
		tag, tagErr := d.allocate(tags.ClassConnect)
		if tagErr != nil {
			_ = sys.Close(fd)
			d.fail(tagErr)
			return tagErr
		}
		sub, prepErr := d.substrate.PrepareConnect(tag, fd, sa)
		if prepErr != nil {
			d.allocator.Release(tag)
			_ = sys.Close(fd)
			d.fail(prepErr)
			return prepErr
		}
		cqe, rtErr := d.roundTrip(sub, deadline)
		if rtErr != nil {
			d.fd = fd
			return rtErr
		}
		if !cqe.OK() {
			err = statusError(errMetaOpConnect, cqe, 0)
			log.Warn().Err(err).Msg("connect failed")
			if closeErr := d.closeFd(fd, deadline); closeErr != nil {
				log.Debug().Err(closeErr).Msg("close failed")
				if d.err != nil {
					// the close itself never completed, the substrate cannot be trusted
					return d.err
				}
			}
			continue
		}
		d.fd = fd
		d.connected.Store(int64(fd))
		d.remote = net.TCPAddrFromAddrPort(addr)
		if local, localErr := sys.LocalAddr(fd); localErr == nil {
			d.local = net.TCPAddrFromAddrPort(local)
		}
		d.writer = stream.NewWriter(d.substrate, fd, d.allocator, &d.slot)
		log.Debug().Msg("connected")
		return nil
	}
	d.fail(err)
	return
}

// CompleteWrite submits the write staged in the slot and waits until every byte of it is
// confirmed, re-staging the remainder after a partial write.
func (d *driver) CompleteWrite(deadline time.Time) (n int, err error) {
	if err = d.err; err != nil {
		return
	}
	sub := d.slot
	if sub == nil || sub.Released() {
		return
	}
	retries := 0
	for {
		bufs := sub.Buffers()
		cqe, rtErr := d.roundTrip(sub, deadline)
		if rtErr != nil {
			err = rtErr
			return
		}
		if !cqe.OK() {
			if transient(cqe.Err()) && retries < maxTransientRetries {
				retries++
				if sub, err = d.restage(bufs); err != nil {
					return
				}
				continue
			}
			err = statusError(errMetaOpWrite, cqe, retries)
			d.fail(err)
			return
		}
		n += cqe.N()
		rest := bufs.Consume(cqe.N())
		if rest.Len() == 0 {
			return
		}
		if cqe.N() == 0 {
			err = errors.From(
				ErrUnexpectedStatus,
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWrite),
				errors.WithWrap(io.ErrShortWrite),
			)
			d.fail(err)
			return
		}
		d.log.Debug().Int("wrote", n).Int("rest", rest.Len()).Msg("partial write")
		if sub, err = d.restage(rest); err != nil {
			return
		}
	}
}

func (d *driver) restage(b iovec.Buffers) (*ring.Submission, error) {
	if _, err := d.writer.Write(b); err != nil {
		d.fail(err)
		return nil, err
	}
	return d.slot, nil
}

// Receive runs one receive and resets the reader with what arrived. The receive is sized to
// finish the TLS record in progress when that needs more than the configured buffer.
func (d *driver) Receive(deadline time.Time) (err error) {
	if err = d.err; err != nil {
		return
	}
	size := min(max(d.readSize, d.tracker.Missing()), record.MaxRecord)
	if d.recvBuf == nil {
		d.recvBuf = make([]byte, record.MaxRecord)
	}
	buf := d.recvBuf[:size]
	for retries := 0; ; retries++ {
		tag, tagErr := d.allocate(tags.ClassRead)
		if tagErr != nil {
			d.fail(tagErr)
			return tagErr
		}
		sub, prepErr := d.substrate.PrepareRecv(tag, d.fd, buf)
		if prepErr != nil {
			d.allocator.Release(tag)
			d.fail(prepErr)
			return prepErr
		}
		cqe, rtErr := d.roundTrip(sub, deadline)
		if rtErr != nil {
			if d.abandoned == sub {
				// the abandoned receive still owns the buffer
				d.recvBuf = nil
			}
			return rtErr
		}
		if !cqe.OK() {
			if transient(cqe.Err()) && retries < maxTransientRetries {
				continue
			}
			err = statusError(errMetaOpRecv, cqe, retries)
			d.fail(err)
			return
		}
		if cqe.N() == 0 {
			err = io.EOF
			return
		}
		data := sub.Received(cqe.N())
		if obsErr := d.tracker.Observe(data); obsErr != nil {
			d.log.Debug().Err(obsErr).Msg("record tracking reset")
			d.tracker.Reset()
		}
		d.reader.Reset(data)
		return
	}
}

// closeFd closes fd through the substrate, or directly when no tag or queue entry is free.
func (d *driver) closeFd(fd int, deadline time.Time) error {
	tag := d.allocator.Allocate(tags.ClassClose)
	if tag == tags.None {
		return sys.Close(fd)
	}
	sub, err := d.substrate.PrepareClose(tag, fd)
	if err != nil {
		d.allocator.Release(tag)
		return sys.Close(fd)
	}
	cqe, err := d.roundTrip(sub, deadline)
	if err != nil {
		return err
	}
	if !cqe.OK() {
		return statusError(errMetaOpClose, cqe, 0)
	}
	return nil
}

// drain waits for the completion of an abandoned submission so its memory can be released.
func (d *driver) drain() {
	deadline := time.Now().Add(closeDrainTimeout)
	for d.abandoned != nil {
		cqe, err := d.substrate.Wait(deadline)
		if err != nil {
			if ring.IsIdle(err) {
				d.discard(d.abandoned)
				d.abandoned = nil
				return
			}
			d.log.Debug().Err(err).Stringer("tag", d.abandoned.Tag()).Msg("abandoned submission not drained")
			return
		}
		if cqe.Tag == d.abandoned.Tag() {
			d.discard(d.abandoned)
			d.abandoned = nil
		}
	}
}

// shutdown drains, closes the socket through the substrate and closes the substrate.
func (d *driver) shutdown() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.abandoned != nil && d.fd >= 0 {
		_ = sys.Shutdown(d.fd)
		d.drain()
	}
	if d.fd >= 0 {
		if d.abandoned != nil {
			err = sys.Close(d.fd)
		} else {
			err = d.closeFd(d.fd, time.Now().Add(closeDrainTimeout))
		}
		d.fd = -1
		d.connected.Store(-1)
	}
	if closeErr := d.substrate.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if d.abandoned != nil {
		// the ring is gone, nothing can complete it anymore
		d.discard(d.abandoned)
		d.abandoned = nil
	}
	if err == nil && d.err == nil {
		d.setErr(ErrClosed)
	}
	return
}

// collect shuts down a driver whose connection was dropped without Close.
func (d *driver) collect() {
	d.log.Debug().Msg("connection collected without close")
	if err := d.shutdown(); err != nil {
		d.log.Debug().Err(err).Msg("shutdown")
	}
}
