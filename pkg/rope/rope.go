// Package rope holds received bytes as an ordered run of ranges and copies them out
// synchronously, front to back, without doing any I/O.
package rope

import (
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/iovec"
)

// ErrOverlap is raised by panic when a range and a destination buffer share memory.
var ErrOverlap = errors.Define("rope range overlaps the destination buffer")

// Rope
// 已接收但尚未被读取的字节区间序列。
//
// 区间本身不可变，被完全读取后即从头部丢弃。
type Rope struct {
	ranges [][]byte
	size   int
}

// New builds a rope over ranges. Zero-length ranges are dropped.
func New(ranges ...[]byte) *Rope {
	r := &Rope{}
	for _, b := range ranges {
		r.Append(b)
	}
	return r
}

// Append adds b to the back of the rope. The rope references b, it does not copy it.
func (r *Rope) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	r.ranges = append(r.ranges, b)
	r.size += len(b)
}

// Len is the number of unread bytes.
func (r *Rope) Len() int {
	return r.size
}

// Ranges is the number of ranges still holding unread bytes.
func (r *Rope) Ranges() int {
	return len(r.ranges)
}

// ReadVec copies from the front of the rope into dst, filling dst segments in order
// until either side is exhausted. It never blocks and returns a short count when the rope
// holds less than dst can take.
func (r *Rope) ReadVec(dst iovec.Buffers) (n int) {
	ri, bi, off := 0, 0, 0
	for ri < len(r.ranges) && bi < len(dst) {
		src := r.ranges[ri]
		if len(src) == 0 {
			ri++
			continue
		}
		buf := dst[bi][off:]
		if len(buf) == 0 {
			bi++
			off = 0
			continue
		}
		if overlaps(src, buf) {
			panic(errors.From(
				ErrOverlap,
				errors.WithMeta("pkg", "rope"),
				errors.WithMeta("op", "read"),
			))
		}
		c := copy(buf, src)
		n += c
		off += c
		r.ranges[ri] = src[c:]
		if c == len(src) {
			r.ranges[ri] = nil
			ri++
		}
	}
	r.ranges = r.ranges[ri:]
	r.size -= n
	if len(r.ranges) == 0 {
		r.ranges = nil
	}
	return
}

// Read is ReadVec with a single destination buffer.
func (r *Rope) Read(p []byte) int {
	return r.ReadVec(iovec.Buffers{p})
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(unsafe.SliceData(a)))
	b0 := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return a0 < b0+uintptr(len(b)) && b0 < a0+uintptr(len(a))
}
