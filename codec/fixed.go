package codec

import (
	"io"
)

func FixedDecode(r io.Reader, fixed int) ([]byte, error) {
	decoder := NewFixedEncoder(fixed)
	return decoder.Decode(r)
}

// FixedEncode writes b truncated or zero-padded to fixed bytes.
func FixedEncode(w io.Writer, b []byte, fixed int) (int, error) {
	return Encode[[]byte](w, NewFixedEncoder(fixed), b)
}

func NewFixedEncoder(fixed int) *FixedEncoder {
	if fixed < 1 {
		panic("codec.FixedEncoder: fixed must be > 0")
	}
	return &FixedEncoder{
		n: fixed,
	}
}

type FixedEncoder struct {
	n int
}

func (encoder *FixedEncoder) Encode(param []byte) (b []byte, err error) {
	n := min(len(param), encoder.n)
	b = make([]byte, encoder.n)
	copy(b, param[:n])
	return
}

func (encoder *FixedEncoder) Decode(r io.Reader) (message []byte, err error) {
	message = make([]byte, encoder.n)
	if _, err = io.ReadFull(r, message); err != nil {
		message = nil
		if err == io.ErrUnexpectedEOF {
			return
		}
	}
	return
}
