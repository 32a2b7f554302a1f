package codec

import (
	"encoding/binary"
	"io"

	"github.com/brickingsoft/errors"
)

const (
	lengthFieldSize = 8
	// DefaultMaxLength bounds a frame body when the decoder sets no limit.
	DefaultMaxLength = 64 << 20
)

type LengthFieldMessage struct {
	Length int
	Bytes  []byte
}

// LengthFieldDecode reads one frame: an 8-byte big-endian length, then that many bytes.
func LengthFieldDecode(r io.Reader) (LengthFieldMessage, error) {
	decoder := LengthFieldDecoder{}
	return decoder.Decode(r)
}

type LengthFieldDecoder struct {
	MaxLength int
}

func (decoder *LengthFieldDecoder) Decode(r io.Reader) (message LengthFieldMessage, err error) {
	var header [lengthFieldSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}
	size := binary.BigEndian.Uint64(header[:])
	if size == 0 {
		// decoded but content size is zero
		return
	}
	limit := decoder.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	if size > uint64(limit) {
		err = errors.From(
			ErrTooLarge,
			errors.WithMeta("length", size),
			errors.WithMeta("max", limit),
		)
		return
	}
	p := make([]byte, size)
	if _, err = io.ReadFull(r, p); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return
	}
	message.Length = int(size)
	message.Bytes = p
	return
}

type LengthFieldEncoder struct{}

func (LengthFieldEncoder) Encode(p []byte) (b []byte, err error) {
	pLen := len(p)
	if pLen == 0 {
		err = ErrEmptyPacket
		return
	}
	b = make([]byte, lengthFieldSize+pLen)
	binary.BigEndian.PutUint64(b, uint64(pLen))
	copy(b[lengthFieldSize:], p)
	return
}

// LengthFieldEncode writes p as one length-prefixed frame. It returns the frame size on the wire.
func LengthFieldEncode(w io.Writer, p []byte) (int, error) {
	return Encode[[]byte](w, LengthFieldEncoder{}, p)
}
