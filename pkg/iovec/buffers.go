// Package iovec describes scatter-gather memory: an ordered list of byte regions that an
// operation reads from or writes into.
package iovec

import (
	"syscall"
	"unsafe"
)

// Buffers
// 分散/聚集缓冲区。
//
// 挂到一个操作上之后，直到该操作的完成事件被观察到之前，这些内存必须保持有效且不被修改。
type Buffers [][]byte

// Len is the total number of bytes across all segments.
func (b Buffers) Len() (n int) {
	for _, seg := range b {
		n += len(seg)
	}
	return
}

// Segments counts the non-empty segments.
func (b Buffers) Segments() (n int) {
	for _, seg := range b {
		if len(seg) > 0 {
			n++
		}
	}
	return
}

// Consume returns the buffers left after dropping n bytes from the front.
// The receiver is not modified.
func (b Buffers) Consume(n int) Buffers {
	i := 0
	for ; i < len(b) && n > 0; i++ {
		if n < len(b[i]) {
			rest := make(Buffers, 0, len(b)-i)
			rest = append(rest, b[i][n:])
			return append(rest, b[i+1:]...)
		}
		n -= len(b[i])
	}
	for ; i < len(b) && len(b[i]) == 0; i++ {
	}
	if i == len(b) {
		return nil
	}
	rest := make(Buffers, len(b)-i)
	copy(rest, b[i:])
	return rest
}

// Iovecs builds the kernel view of b. Zero-length segments are skipped.
func (b Buffers) Iovecs() []syscall.Iovec {
	vecs := make([]syscall.Iovec, 0, len(b))
	for _, seg := range b {
		if len(seg) == 0 {
			continue
		}
		vec := syscall.Iovec{Base: unsafe.SliceData(seg)}
		vec.SetLen(len(seg))
		vecs = append(vecs, vec)
	}
	return vecs
}

// Flatten copies every segment into one contiguous slice.
func (b Buffers) Flatten() []byte {
	p := make([]byte, 0, b.Len())
	for _, seg := range b {
		p = append(p, seg...)
	}
	return p
}
