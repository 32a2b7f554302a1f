//go:build linux

package ring

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/kernel"
	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/pawelgaczynski/giouring"
)

// IORING_OP_RECV and IORING_OP_CLOSE arrived in 5.6.
const (
	minKernelMajor = 5
	minKernelMinor = 6
)

func newURing(opts Options) (Substrate, error) {
	if ok, kErr := kernel.AtLeast(minKernelMajor, minKernelMinor); kErr != nil || !ok {
		v, _ := kernel.Get()
		return nil, errors.From(
			ErrUnsupported,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
			errors.WithMeta("kernel", v.String()),
		)
	}
	r, rErr := giouring.CreateRing(opts.Entries)
	if rErr != nil {
		return nil, errors.From(
			ErrUnsupported,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpSetup),
			errors.WithWrap(rErr),
		)
	}
	return &uring{
		ring: r,
		opts: opts,
	}, nil
}

type uring struct {
	ring   *giouring.Ring
	opts   Options
	closed bool
}

func (r *uring) getSQE() (*giouring.SubmissionQueueEntry, error) {
	if r.closed {
		return nil, ErrClosed
	}
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return nil, errors.From(
			ErrQueueExhausted,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaOpKey, errMetaOpPrepare),
		)
	}
	return sqe, nil
}

func (r *uring) PrepareConnect(tag tags.Tag, fd int, sa syscall.Sockaddr) (sub *Submission, err error) {
	raw, rawLen, rawErr := sys.SockaddrToRaw(sa)
	if rawErr != nil {
		err = rawErr
		return
	}
	sqe, sqeErr := r.getSQE()
	if sqeErr != nil {
		err = sqeErr
		return
	}
	sub = newSubmission(tag, OpConnect, fd)
	sub.sockaddr = sa
	sub.pinSockaddr(raw, rawLen)
	sqe.PrepareConnect(fd, (*syscall.Sockaddr)(unsafe.Pointer(raw)), uint64(rawLen))
	sqe.SetData64(uint64(tag))
	return
}

func (r *uring) PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (sub *Submission, err error) {
	sqe, sqeErr := r.getSQE()
	if sqeErr != nil {
		err = sqeErr
		return
	}
	sub = newSubmission(tag, OpWritev, fd)
	sub.lease = iovec.NewLease(b, r.opts.VerifyBuffers)
	vecs := sub.lease.Iovecs()
	sqe.PrepareWritev(fd, uintptr(unsafe.Pointer(unsafe.SliceData(vecs))), uint32(len(vecs)), 0)
	sqe.SetData64(uint64(tag))
	return
}

func (r *uring) PrepareRecv(tag tags.Tag, fd int, b []byte) (sub *Submission, err error) {
	sqe, sqeErr := r.getSQE()
	if sqeErr != nil {
		err = sqeErr
		return
	}
	sub = newSubmission(tag, OpRecv, fd)
	sub.pinBytes(b)
	sqe.PrepareRecv(fd, uintptr(unsafe.Pointer(unsafe.SliceData(b))), uint32(len(b)), 0)
	sqe.SetData64(uint64(tag))
	return
}

func (r *uring) PrepareClose(tag tags.Tag, fd int) (sub *Submission, err error) {
	sqe, sqeErr := r.getSQE()
	if sqeErr != nil {
		err = sqeErr
		return
	}
	sub = newSubmission(tag, OpClose, fd)
	sqe.PrepareClose(fd)
	sqe.SetData64(uint64(tag))
	return
}

func (r *uring) Submit(sub *Submission) (err error) {
	if sub == nil || sub.state != preparedState {
		err = ErrNotPrepared
		return
	}
	for {
		if _, submitErr := r.ring.Submit(); submitErr != nil {
			if errors.Is(submitErr, syscall.EINTR) || errors.Is(submitErr, syscall.EAGAIN) {
				continue
			}
			err = errors.New(
				"submit failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpSubmit),
				errors.WithWrap(submitErr),
			)
			return
		}
		break
	}
	sub.state = submittedState
	return
}

func (r *uring) Wait(deadline time.Time) (c Completion, err error) {
	if r.closed {
		err = ErrClosed
		return
	}
	for {
		var (
			cqe     *giouring.CompletionQueueEvent
			waitErr error
		)
		if deadline.IsZero() {
			cqe, waitErr = r.ring.WaitCQE()
		} else {
			timeout := time.Until(deadline)
			if timeout <= 0 {
				err = ErrTimeout
				return
			}
			ts := syscall.NsecToTimespec(timeout.Nanoseconds())
			cqe, waitErr = r.ring.WaitCQETimeout(&ts)
		}
		if waitErr != nil {
			if errors.Is(waitErr, syscall.EINTR) {
				continue
			}
			if errors.Is(waitErr, syscall.ETIME) {
				err = ErrTimeout
				return
			}
			err = errors.New(
				"wait failed",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpWait),
				errors.WithWrap(waitErr),
			)
			return
		}
		if cqe == nil {
			continue
		}
		c = Completion{
			Tag:   tags.Tag(cqe.UserData),
			Res:   cqe.Res,
			Flags: cqe.Flags,
		}
		r.ring.CQESeen(cqe)
		return
	}
}

func (r *uring) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.ring.QueueExit()
	return nil
}
