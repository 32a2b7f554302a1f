package sys

import "github.com/brickingsoft/errors"

var (
	ErrDNSLookupFailure = errors.Define("dns lookup failure")
)

func IsDNSLookupFailure(err error) bool {
	return errors.Is(err, ErrDNSLookupFailure)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "sys"
)

const (
	errMetaOpKey     = "op"
	errMetaOpResolve = "resolve"
	errMetaOpSocket  = "socket"
	errMetaHostKey   = "host"
)
