// Package ring is the asynchronous I/O substrate: operations are prepared into a submission
// queue, flushed, and their results observed later on a completion queue.
package ring

import (
	"strings"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/tags"
)

// Substrate
// 异步 I/O 基座。
//
// Prepare* 只把操作放入提交队列并返回句柄，不执行 I/O；Submit 把句柄交给内核；
// Wait 阻塞直到下一个完成事件或截止时间。
type Substrate interface {
	PrepareConnect(tag tags.Tag, fd int, sa syscall.Sockaddr) (*Submission, error)
	PrepareWritev(tag tags.Tag, fd int, b iovec.Buffers) (*Submission, error)
	PrepareRecv(tag tags.Tag, fd int, b []byte) (*Submission, error)
	PrepareClose(tag tags.Tag, fd int) (*Submission, error)
	// Submit flushes the submission queue. sub must be a prepared, not yet submitted handle.
	Submit(sub *Submission) error
	// Wait blocks for one completion. A zero deadline waits without limit. When the deadline
	// elapses the operation either stays in flight or, if it can no longer complete, is Retired.
	Wait(deadline time.Time) (Completion, error)
	Close() error
}

type Kind uint8

const (
	KindAuto Kind = iota
	KindURing
	KindBlocking
)

func (k Kind) String() string {
	switch k {
	case KindURing:
		return "uring"
	case KindBlocking:
		return "blocking"
	default:
		return "auto"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return KindAuto, nil
	case "uring", "io_uring", "iouring":
		return KindURing, nil
	case "blocking", "sync":
		return KindBlocking, nil
	default:
		return KindAuto, errors.New(
			"unknown substrate kind",
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta("kind", s),
		)
	}
}

const (
	DefaultEntries = 8
	MaxEntries     = 32768
)

type Options struct {
	Entries       uint32
	VerifyBuffers bool
}

type Option func(options *Options) (err error)

// WithEntries
// 设置提交队列深度。单飞行模式下很小的队列就够用。
func WithEntries(entries uint32) Option {
	return func(options *Options) (err error) {
		if entries == 0 {
			entries = DefaultEntries
		}
		if entries > MaxEntries {
			err = errors.New(
				"entries is too large",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta(errMetaOpKey, errMetaOpSetup),
			)
			return
		}
		options.Entries = entries
		return
	}
}

// WithVerifyBuffers
// 在完成时校验写缓冲区在飞行期间没有被修改。
func WithVerifyBuffers(verify bool) Option {
	return func(options *Options) (err error) {
		options.VerifyBuffers = verify
		return
	}
}

// New creates a substrate of the given kind. KindAuto prefers io_uring and falls back to the
// blocking substrate when the kernel refuses ring setup.
func New(kind Kind, options ...Option) (s Substrate, err error) {
	opts := Options{
		Entries: DefaultEntries,
	}
	for _, o := range options {
		if err = o(&opts); err != nil {
			return
		}
	}
	switch kind {
	case KindURing:
		s, err = newURing(opts)
	case KindBlocking:
		s, err = newBlocking(opts)
	default:
		if s, err = newURing(opts); err != nil {
			s, err = newBlocking(opts)
		}
	}
	return
}
