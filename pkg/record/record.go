// Package record follows TLS record framing across received chunks so that the next receive
// can be sized to finish the record in progress.
package record

import (
	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/cryptobyte"
)

const (
	HeaderLen = 5
	// MaxCiphertext is the largest record body a TLS 1.2 peer may send.
	MaxCiphertext = 16384 + 2048
	// MaxRecord is a full record, header included.
	MaxRecord = HeaderLen + MaxCiphertext
)

const (
	TypeChangeCipherSpec uint8 = 20
	TypeAlert            uint8 = 21
	TypeHandshake        uint8 = 22
	TypeApplicationData  uint8 = 23
	TypeHeartbeat        uint8 = 24
)

var (
	ErrMalformed = errors.Define("malformed tls record header")
	ErrOverflow  = errors.Define("tls record exceeds the maximum ciphertext length")
)

// Tracker
// 记录追踪器。
//
// 按接收顺序喂入字节，追踪当前记录还缺多少字节。
type Tracker struct {
	header    [HeaderLen]byte
	headerN   int
	remaining int
	records   int
	last      uint8
}

// Observe feeds received bytes in arrival order.
func (t *Tracker) Observe(b []byte) error {
	for len(b) > 0 {
		if t.remaining > 0 {
			n := min(t.remaining, len(b))
			t.remaining -= n
			b = b[n:]
			if t.remaining == 0 {
				t.records++
			}
			continue
		}
		n := copy(t.header[t.headerN:], b)
		t.headerN += n
		b = b[n:]
		if t.headerN < HeaderLen {
			continue
		}
		t.headerN = 0
		if err := t.parse(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) parse() error {
	var (
		typ     uint8
		version uint16
		length  uint16
	)
	s := cryptobyte.String(t.header[:])
	if !s.ReadUint8(&typ) || !s.ReadUint16(&version) || !s.ReadUint16(&length) {
		return ErrMalformed
	}
	if typ < TypeChangeCipherSpec || typ > TypeHeartbeat || version>>8 != 0x03 {
		return errors.From(
			ErrMalformed,
			errors.WithMeta("pkg", "record"),
			errors.WithMeta("type", typ),
			errors.WithMeta("version", version),
		)
	}
	if int(length) > MaxCiphertext {
		return errors.From(
			ErrOverflow,
			errors.WithMeta("pkg", "record"),
			errors.WithMeta("length", length),
		)
	}
	t.last = typ
	t.remaining = int(length)
	if t.remaining == 0 {
		t.records++
	}
	return nil
}

// Missing is the number of bytes still needed to complete the record in progress,
// or zero at a record boundary.
func (t *Tracker) Missing() int {
	if t.remaining > 0 {
		return t.remaining
	}
	if t.headerN > 0 {
		return HeaderLen - t.headerN
	}
	return 0
}

// Records is the number of complete records observed.
func (t *Tracker) Records() int {
	return t.records
}

// Last is the content type of the most recent record header.
func (t *Tracker) Last() uint8 {
	return t.last
}

func (t *Tracker) Reset() {
	*t = Tracker{}
}
