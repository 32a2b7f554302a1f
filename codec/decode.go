// Package codec frames application messages over a synchronous byte stream such as a
// riotls.Conn, giving the reader an explicit length to read until.
package codec

import (
	"io"

	"github.com/brickingsoft/errors"
)

var (
	ErrEmptyPacket = errors.Define("codec: empty packet")
	ErrTooLarge    = errors.Define("codec: frame exceeds the maximum length")
)

// Decoder
// 解析器。
// 泛型 T 是解析的结果。Decode 阻塞读取直到得到一条完整消息，
// 在消息边界上遇到流结束时返回 io.EOF，消息中途结束时返回 io.ErrUnexpectedEOF。
type Decoder[T any] interface {
	Decode(r io.Reader) (message T, err error)
}

// Decode
// 流式解析，每解析到一条消息调用一次 fn，直到流结束或 fn 返回错误。
// 流在消息边界上结束时返回 nil。
func Decode[T any](r io.Reader, decoder Decoder[T], fn func(message T) error) error {
	for {
		message, err := decoder.Decode(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err = fn(message); err != nil {
			return err
		}
	}
}

// DecodeOnce
// 单次解析
func DecodeOnce[T any](r io.Reader, decoder Decoder[T]) (T, error) {
	return decoder.Decode(r)
}
