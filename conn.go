package riotls

import (
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/security"
	"github.com/rs/zerolog"
)

// Conn
// 经由异步 I/O 基座驱动的 TLS 客户端连接。
//
// 读写是同步的：每次调用在返回前完成一次或多次 提交-等待 往返。
// 同一时刻只有一个在途操作，因此并发的 Read 与 Write 会互相等待；Close 会先中断挂起的 Read。
// 未经 Close 就被丢弃的连接由运行时清理，关闭套接字并释放在途内存。
type Conn struct {
	id         string
	log        zerolog.Logger
	state      atomic.Uint32
	driver     *driver
	capability net.Conn
	session    security.Session
	closeOnce  sync.Once
	closeErr   error
	cleanup    runtime.Cleanup
}

func (c *Conn) ID() string {
	return c.id
}

// State is the current lifecycle state. A driver failure is reported as Failed.
func (c *Conn) State() State {
	s := State(c.state.Load())
	if s != Closed && s != Failed && c.driver != nil {
		if err := c.driver.failure(); err != nil && !IsClosed(err) {
			c.setState(Failed)
			return Failed
		}
	}
	return s
}

func (c *Conn) setState(s State) {
	old := State(c.state.Swap(uint32(s)))
	if old != s {
		c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("state")
	}
}

// ConnectionState describes the negotiated TLS session.
func (c *Conn) ConnectionState() security.State {
	if c.session == nil {
		return security.State{}
	}
	return c.session.State()
}

// Read implements the net.Conn Read method.
func (c *Conn) Read(b []byte) (n int, err error) {
	if s := c.State(); s != ApplicationData {
		err = c.opError("read", c.notReady(s))
		return
	}
	n, err = c.session.Read(b)
	if err != nil && err != io.EOF {
		err = c.opError("read", err)
	}
	return
}

// Write implements the net.Conn Write method.
func (c *Conn) Write(b []byte) (n int, err error) {
	if s := c.State(); s != ApplicationData {
		err = c.opError("write", c.notReady(s))
		return
	}
	if n, err = c.session.Write(b); err != nil {
		err = c.opError("write", err)
	}
	return
}

// Close sends close_notify when the session is healthy, then closes the socket and the
// substrate. A Read pending in another goroutine is interrupted first and returns.
// Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		c.driver.interrupt()
		if c.session != nil {
			if err := c.session.Close(); err != nil {
				c.log.Debug().Err(err).Msg("close session")
			}
		} else if c.capability != nil {
			_ = c.capability.Close()
		}
		if err := c.driver.shutdown(); err != nil {
			c.closeErr = c.opError("close", err)
		}
		if State(c.state.Load()) != Failed {
			c.setState(Closed)
		}
	})
	return c.closeErr
}

// LocalAddr implements the net.Conn LocalAddr method.
func (c *Conn) LocalAddr() net.Addr {
	return c.driver.LocalAddr()
}

// RemoteAddr implements the net.Conn RemoteAddr method.
func (c *Conn) RemoteAddr() net.Addr {
	return c.driver.RemoteAddr()
}

// SetDeadline implements the net.Conn SetDeadline method.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.capability.SetDeadline(t)
}

// SetReadDeadline implements the net.Conn SetReadDeadline method.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.capability.SetReadDeadline(t)
}

// SetWriteDeadline implements the net.Conn SetWriteDeadline method.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.capability.SetWriteDeadline(t)
}

func (c *Conn) notReady(s State) error {
	if s == Closed {
		return ErrClosed
	}
	if cause := c.driver.failure(); cause != nil && !IsClosed(cause) {
		return errors.From(
			ErrNotReady,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta(errMetaStateKey, s.String()),
			errors.WithWrap(cause),
		)
	}
	return errors.From(
		ErrNotReady,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta(errMetaStateKey, s.String()),
	)
}

func (c *Conn) opError(op string, err error) error {
	return &net.OpError{Op: op, Net: "tcp", Source: c.LocalAddr(), Addr: c.RemoteAddr(), Err: err}
}
