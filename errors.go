package riotls

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/security"
	"github.com/brickingsoft/riotls/pkg/stream"
	"github.com/brickingsoft/riotls/pkg/sys"
)

var (
	ErrDNSLookupFailure     = sys.ErrDNSLookupFailure
	ErrUnexpectedStatus     = errors.Define("unexpected completion status")
	ErrTLSHandshakeFailure  = security.ErrHandshakeFailure
	ErrQueueExhausted       = ring.ErrQueueExhausted
	ErrTimeout              = ring.ErrTimeout
	ErrUnexpectedCompletion = errors.Define("completion does not match the submission in flight")
	ErrSubmissionInFlight   = stream.ErrSubmissionInFlight
	ErrClosed               = errors.Define("connection closed")
	ErrUnsupported          = ring.ErrUnsupported
	ErrNotReady             = errors.Define("connection is not carrying application data")
)

func IsDNSLookupFailure(err error) bool {
	return errors.Is(unwrapOpError(err), ErrDNSLookupFailure)
}

func IsUnexpectedStatus(err error) bool {
	return errors.Is(unwrapOpError(err), ErrUnexpectedStatus)
}

func IsTLSHandshakeFailure(err error) bool {
	return errors.Is(unwrapOpError(err), ErrTLSHandshakeFailure)
}

func IsQueueExhausted(err error) bool {
	return errors.Is(unwrapOpError(err), ErrQueueExhausted)
}

// IsTimeout also reports a dial context that expired while the handshake was blocked.
func IsTimeout(err error) bool {
	err = unwrapOpError(err)
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func IsUnexpectedCompletion(err error) bool {
	return errors.Is(unwrapOpError(err), ErrUnexpectedCompletion)
}

func IsSubmissionInFlight(err error) bool {
	return errors.Is(unwrapOpError(err), ErrSubmissionInFlight)
}

func IsClosed(err error) bool {
	return errors.Is(unwrapOpError(err), ErrClosed)
}

func IsUnsupported(err error) bool {
	return errors.Is(unwrapOpError(err), ErrUnsupported)
}

func unwrapOpError(err error) error {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return opErr.Err
	}
	return err
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "riotls"

	errMetaOpKey      = "op"
	errMetaOpConnect  = "connect"
	errMetaOpWrite    = "write"
	errMetaOpRecv     = "recv"
	errMetaOpClose    = "close"
	errMetaOpWait     = "wait"
	errMetaOpDial     = "dial"
	errMetaTagKey     = "tag"
	errMetaAddrKey    = "addr"
	errMetaExpectKey  = "expect"
	errMetaStateKey   = "state"
	errMetaRetriesKey = "retries"
)
