package rope

import (
	"github.com/brickingsoft/riotls/pkg/iovec"
)

// Reader
// 读取流。
//
// 以同步的 read 形式把一根已完成的 rope 交给调用方，本身不发起任何 I/O。
// 为空时由调用方发起新的接收并 Reset。
type Reader struct {
	rope *Rope
}

func NewReader(r *Rope) *Reader {
	if r == nil {
		r = New()
	}
	return &Reader{rope: r}
}

// Read copies as much of the rope as fits into b. An empty rope gives a zero count and no error.
func (reader *Reader) Read(b iovec.Buffers) (int, error) {
	return reader.rope.ReadVec(b), nil
}

// Reset replaces the drained rope with the ranges of a fresh receive completion.
func (reader *Reader) Reset(ranges ...[]byte) {
	reader.rope = New(ranges...)
}

func (reader *Reader) Empty() bool {
	return reader.rope.Len() == 0
}

func (reader *Reader) Buffered() int {
	return reader.rope.Len()
}
