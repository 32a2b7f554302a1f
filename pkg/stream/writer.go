// Package stream is the write side of the synchronous capability: a write queues a
// scatter-gather submission instead of performing I/O.
package stream

import (
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/tags"
)

var (
	ErrSubmissionInFlight = errors.Define("a submission is already in flight")
)

func IsSubmissionInFlight(err error) bool {
	return errors.Is(err, ErrSubmissionInFlight)
}

// Writer
// 写入流。
//
// Write 只准备一个 writev 提交并把句柄放入驱动方持有的槽位，返回的是计划写入的字节数，
// 并非已确认的字节数。驱动方负责提交、等待完成并清空槽位。
type Writer struct {
	substrate ring.Substrate
	fd        int
	allocator tags.Allocator
	slot      **ring.Submission
}

func NewWriter(substrate ring.Substrate, fd int, allocator tags.Allocator, slot **ring.Submission) *Writer {
	return &Writer{
		substrate: substrate,
		fd:        fd,
		allocator: allocator,
		slot:      slot,
	}
}

// Write prepares one writev over b. The segments of b are referenced until the completion
// is observed and must not be modified before that.
func (w *Writer) Write(b iovec.Buffers) (n int, err error) {
	if live := *w.slot; live != nil && !live.Released() {
		err = errors.From(
			ErrSubmissionInFlight,
			errors.WithMeta("pkg", "stream"),
			errors.WithMeta("tag", live.Tag().String()),
		)
		return
	}
	n = b.Len()
	if n == 0 {
		return
	}
	tag := w.allocator.Allocate(tags.ClassWrite)
	if tag == tags.None {
		n = 0
		err = errors.From(
			ring.ErrQueueExhausted,
			errors.WithMeta("pkg", "stream"),
			errors.WithMeta("op", "allocate"),
		)
		return
	}
	sub, prepErr := w.substrate.PrepareWritev(tag, w.fd, b)
	if prepErr != nil {
		w.allocator.Release(tag)
		n = 0
		err = prepErr
		return
	}
	*w.slot = sub
	return
}
