//go:build linux

package ring

import (
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/tags"
	"golang.org/x/sys/unix"
)

func newBlocking(opts Options) (Substrate, error) {
	return &blocking{
		opts: opts,
	}, nil
}

// blocking runs each submitted operation as a blocking syscall when it is waited for.
// Socket send/receive timeouts carry the wait deadline into the syscall.
type blocking struct {
	opts     Options
	prepared []*Submission
	ready    []*Submission
	closed   bool
}

func (b *blocking) prepare(tag tags.Tag, op Op, fd int) (sub *Submission, err error) {
	if b.closed {
		err = ErrClosed
		return
	}
	if uint32(len(b.prepared)+len(b.ready)) >= b.opts.Entries {
		err = errors.From(
			ErrQueueExhausted,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPrepare),
		)
		return
	}
	sub = newSubmission(tag, op, fd)
	b.prepared = append(b.prepared, sub)
	return
}

func (b *blocking) PrepareConnect(tag tags.Tag, fd int, sa syscall.Sockaddr) (sub *Submission, err error) {
	if sub, err = b.prepare(tag, OpConnect, fd); err != nil {
		return
	}
	sub.sockaddr = sa
	return
}

func (b *blocking) PrepareWritev(tag tags.Tag, fd int, bufs iovec.Buffers) (sub *Submission, err error) {
	if sub, err = b.prepare(tag, OpWritev, fd); err != nil {
		return
	}
	sub.lease = iovec.NewLease(bufs, b.opts.VerifyBuffers)
	return
}

func (b *blocking) PrepareRecv(tag tags.Tag, fd int, p []byte) (sub *Submission, err error) {
	if sub, err = b.prepare(tag, OpRecv, fd); err != nil {
		return
	}
	sub.pinBytes(p)
	return
}

func (b *blocking) PrepareClose(tag tags.Tag, fd int) (sub *Submission, err error) {
	return b.prepare(tag, OpClose, fd)
}

func (b *blocking) Submit(sub *Submission) (err error) {
	if err = sub.MarkSubmitted(); err != nil {
		return
	}
	for _, p := range b.prepared {
		p.state = submittedState
	}
	b.ready = append(b.ready, b.prepared...)
	b.prepared = b.prepared[:0]
	return
}

func (b *blocking) Wait(deadline time.Time) (c Completion, err error) {
	if b.closed {
		err = ErrClosed
		return
	}
	if len(b.ready) == 0 {
		err = ErrIdle
		return
	}
	sub := b.ready[0]
	b.ready[0] = nil
	b.ready = b.ready[1:]

	// the operation leaves the queue here, a timeout retires it instead of leaving it in flight
	var timeout time.Duration
	if !deadline.IsZero() {
		if timeout = time.Until(deadline); timeout <= 0 {
			sub.Retire()
			err = ErrTimeout
			return
		}
	}
	n, execErr := b.execute(sub, timeout)
	if execErr != nil {
		errno, ok := execErr.(syscall.Errno)
		if !ok {
			sub.Retire()
			err = execErr
			return
		}
		if timeout > 0 && (errno == syscall.EAGAIN || errno == syscall.EINPROGRESS) {
			sub.Retire()
			err = ErrTimeout
			return
		}
		n = -int(errno)
	}
	c = Completion{
		Tag: sub.tag,
		Res: int32(n),
	}
	return
}

func (b *blocking) execute(sub *Submission, timeout time.Duration) (n int, err error) {
	if sub.op != OpClose {
		if err = setTimeouts(sub.fd, timeout); err != nil {
			return
		}
	}
	switch sub.op {
	case OpConnect:
		for {
			err = syscall.Connect(sub.fd, sub.sockaddr)
			if err == syscall.EINTR {
				continue
			}
			break
		}
	case OpWritev:
		for {
			n, err = unix.Writev(sub.fd, sub.lease.Buffers())
			if err == unix.EINTR {
				continue
			}
			break
		}
	case OpRecv:
		for {
			n, err = syscall.Read(sub.fd, sub.buf)
			if err == syscall.EINTR {
				continue
			}
			break
		}
	case OpClose:
		err = syscall.Close(sub.fd)
	default:
		err = syscall.EINVAL
	}
	if n < 0 {
		n = 0
	}
	return
}

func setTimeouts(fd int, timeout time.Duration) error {
	if timeout > 0 && timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		return err
	}
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (b *blocking) Close() error {
	b.closed = true
	b.prepared = nil
	b.ready = nil
	return nil
}
