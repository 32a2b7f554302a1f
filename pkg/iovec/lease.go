package iovec

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/cespare/xxhash/v2"
)

var (
	ErrBufferMutated = errors.Define("buffer was mutated while its operation was in flight")
	ErrLeaseReleased = errors.Define("lease was already released")
)

// Lease keeps the memory of an in-flight operation pinned until its completion is observed.
type Lease struct {
	buffers  Buffers
	iovecs   []syscall.Iovec
	pinner   runtime.Pinner
	verify   bool
	sum      uint64
	released bool
}

// NewLease pins every non-empty segment of b and, when verify is set, records a checksum
// so that Release can detect writes made by the caller before the completion arrived.
func NewLease(b Buffers, verify bool) *Lease {
	lease := &Lease{
		buffers: b,
		iovecs:  b.Iovecs(),
		verify:  verify,
	}
	for _, seg := range b {
		if len(seg) > 0 {
			lease.pinner.Pin(unsafe.SliceData(seg))
		}
	}
	if len(lease.iovecs) > 0 {
		lease.pinner.Pin(unsafe.SliceData(lease.iovecs))
	}
	if verify {
		lease.sum = checksum(b)
	}
	return lease
}

func (lease *Lease) Buffers() Buffers {
	return lease.buffers
}

// Iovecs is the pinned kernel view. It stays valid until Release.
func (lease *Lease) Iovecs() []syscall.Iovec {
	return lease.iovecs
}

func (lease *Lease) Len() int {
	return lease.buffers.Len()
}

// Release unpins the memory. It panics with ErrBufferMutated when verification was requested
// and the bytes changed, which is a contract violation by the caller, not a runtime failure.
func (lease *Lease) Release() error {
	if lease.released {
		return ErrLeaseReleased
	}
	lease.released = true
	lease.pinner.Unpin()
	if lease.verify && checksum(lease.buffers) != lease.sum {
		panic(ErrBufferMutated)
	}
	return nil
}

func checksum(b Buffers) uint64 {
	d := xxhash.New()
	for _, seg := range b {
		_, _ = d.Write(seg)
	}
	return d.Sum64()
}
