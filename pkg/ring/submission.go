package ring

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/tags"
)

type Op uint8

const (
	OpConnect Op = iota + 1
	OpWritev
	OpRecv
	OpClose
)

func (op Op) String() string {
	switch op {
	case OpConnect:
		return "connect"
	case OpWritev:
		return "writev"
	case OpRecv:
		return "recv"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

const (
	preparedState uint8 = iota + 1
	submittedState
	retiredState
	releasedState
)

// Submission
// 一个尚未提交或尚未完成的操作的句柄。
//
// 它引用（而不是拥有）调用方的内存，并在 Release 之前一直保持固定。
type Submission struct {
	tag      tags.Tag
	op       Op
	fd       int
	state    uint8
	lease    *iovec.Lease
	buf      []byte
	sockaddr syscall.Sockaddr
	raw      *syscall.RawSockaddrAny
	rawLen   int32
	pinner   runtime.Pinner
}

func newSubmission(tag tags.Tag, op Op, fd int) *Submission {
	return &Submission{
		tag:   tag,
		op:    op,
		fd:    fd,
		state: preparedState,
	}
}

// NewSubmission builds a prepared handle for substrates implemented outside this package.
// b is the scatter list of a writev, p the buffer of a recv; both are pinned until Release.
func NewSubmission(tag tags.Tag, op Op, fd int, b iovec.Buffers, p []byte) *Submission {
	sub := newSubmission(tag, op, fd)
	if op == OpWritev {
		sub.lease = iovec.NewLease(b, false)
	}
	if op == OpRecv {
		sub.pinBytes(p)
	}
	return sub
}

func (sub *Submission) Tag() tags.Tag {
	return sub.tag
}

func (sub *Submission) Op() Op {
	return sub.op
}

func (sub *Submission) Fd() int {
	return sub.fd
}

// Bytes is the number of bytes the operation intends to move. It is not a confirmed count.
func (sub *Submission) Bytes() int {
	switch sub.op {
	case OpWritev:
		return sub.lease.Len()
	case OpRecv:
		return len(sub.buf)
	default:
		return 0
	}
}

// Buffers returns the scatter list of a writev submission.
func (sub *Submission) Buffers() iovec.Buffers {
	if sub.lease == nil {
		return nil
	}
	return sub.lease.Buffers()
}

// Received returns the receive buffer cut to n bytes.
func (sub *Submission) Received(n int) []byte {
	if n > len(sub.buf) {
		n = len(sub.buf)
	}
	return sub.buf[:n]
}

func (sub *Submission) Submitted() bool {
	return sub.state == submittedState
}

// MarkSubmitted moves a prepared handle to the submitted state.
func (sub *Submission) MarkSubmitted() error {
	if sub == nil || sub.state != preparedState {
		return ErrNotPrepared
	}
	sub.state = submittedState
	return nil
}

// Retired reports that the operation finished without delivering a completion, as a blocking
// substrate does when its deadline elapses. Nothing references its memory anymore.
func (sub *Submission) Retired() bool {
	return sub.state == retiredState
}

// Retire marks a submitted operation as finished without a completion.
func (sub *Submission) Retire() {
	if sub.state == submittedState {
		sub.state = retiredState
	}
}

func (sub *Submission) Released() bool {
	return sub.state == releasedState
}

// Release unpins the memory referenced by the submission. Call it only after the matching
// completion has been observed.
func (sub *Submission) Release() (err error) {
	if sub.state == releasedState {
		return
	}
	sub.state = releasedState
	sub.pinner.Unpin()
	if sub.lease != nil {
		err = sub.lease.Release()
	}
	return
}

func (sub *Submission) pinBytes(b []byte) {
	sub.buf = b
	if len(b) > 0 {
		sub.pinner.Pin(unsafe.SliceData(b))
	}
}

func (sub *Submission) pinSockaddr(raw *syscall.RawSockaddrAny, rawLen int32) {
	sub.raw = raw
	sub.rawLen = rawLen
	sub.pinner.Pin(raw)
}

// Completion
// 一个已完成操作的结果：关联标识，状态码（负数为 errno），以及读写的字节数。
type Completion struct {
	Tag   tags.Tag
	Res   int32
	Flags uint32
}

func (c Completion) OK() bool {
	return c.Res >= 0
}

// N is the byte count of a successful read or write.
func (c Completion) N() int {
	if c.Res < 0 {
		return 0
	}
	return int(c.Res)
}

// Err returns the errno carried by a failed completion.
func (c Completion) Err() error {
	if c.Res >= 0 {
		return nil
	}
	return syscall.Errno(-c.Res)
}
