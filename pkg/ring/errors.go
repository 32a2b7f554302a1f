package ring

import "github.com/brickingsoft/errors"

var (
	ErrQueueExhausted = errors.Define("submission queue exhausted")
	ErrTimeout        = errors.Define("timeout")
	ErrUnsupported    = errors.Define("io_uring is not supported")
	ErrClosed         = errors.Define("substrate closed")
	ErrNotPrepared    = errors.Define("submission is not prepared")
	ErrIdle           = errors.Define("no submitted operation to wait for")
)

func IsQueueExhausted(err error) bool {
	return errors.Is(err, ErrQueueExhausted)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func IsIdle(err error) bool {
	return errors.Is(err, ErrIdle)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "ring"
)

const (
	errMetaOpKey     = "op"
	errMetaOpSetup   = "setup"
	errMetaOpPrepare = "prepare"
	errMetaOpSubmit  = "submit"
	errMetaOpWait    = "wait"
)
