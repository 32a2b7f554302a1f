package codec

import (
	"io"
)

type Encoder[T any] interface {
	Encode(param T) (p []byte, err error)
}

// Encode writes the encoded frame with a single Write so it travels as one submission.
func Encode[T any](w io.Writer, encoder Encoder[T], data T) (n int, err error) {
	p, encodeErr := encoder.Encode(data)
	if encodeErr != nil {
		err = encodeErr
		return
	}
	n, err = w.Write(p)
	return
}
