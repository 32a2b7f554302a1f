// Package compress decodes HTTP response bodies by Content-Encoding.
package compress

import (
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Supported lists the encodings NewReader understands, in Accept-Encoding order.
const Supported = "gzip, deflate, br, zstd"

// NewReader wraps body with a decoder for contentEncoding. Identity and empty encodings
// return body unchanged; unknown encodings return nil.
func NewReader(body io.ReadCloser, contentEncoding string) io.ReadCloser {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body
	case "gzip", "x-gzip":
		return &lazyReader{Body: body, open: func(r io.Reader) (io.Reader, func(), error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, func() { _ = zr.Close() }, nil
		}}
	case "deflate":
		return &lazyReader{Body: body, open: func(r io.Reader) (io.Reader, func(), error) {
			fr := flate.NewReader(r)
			return fr, func() { _ = fr.Close() }, nil
		}}
	case "br":
		return &lazyReader{Body: body, open: func(r io.Reader) (io.Reader, func(), error) {
			return brotli.NewReader(r), nil, nil
		}}
	case "zstd":
		return &lazyReader{Body: body, open: func(r io.Reader) (io.Reader, func(), error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, err
			}
			return zr, zr.Close, nil
		}}
	}
	return nil
}

// lazyReader creates its decoder on the first Read so no body bytes are consumed before
// the caller asks for them.
type lazyReader struct {
	Body  io.ReadCloser // underlying Response.Body
	open  func(r io.Reader) (io.Reader, func(), error)
	r     io.Reader
	close func()
	err   error // sticky error
}

func (lr *lazyReader) Read(p []byte) (n int, err error) {
	if lr.err != nil {
		return 0, lr.err
	}
	if lr.r == nil {
		lr.r, lr.close, err = lr.open(lr.Body)
		if err != nil {
			lr.err = err
			return 0, err
		}
	}
	return lr.r.Read(p)
}

func (lr *lazyReader) Close() error {
	if lr.close != nil {
		lr.close()
	}
	return lr.Body.Close()
}
