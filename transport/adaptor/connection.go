// Package adaptor turns the write-stream and read-stream into the synchronous net.Conn a TLS
// engine expects, handing every round trip to the driver.
package adaptor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/riotls/pkg/iovec"
	"github.com/brickingsoft/riotls/pkg/rope"
	"github.com/brickingsoft/riotls/pkg/stream"
)

// Driver
// 驱动方。
//
// 调用方在持有锁期间调用 Err、CompleteWrite 与 Receive。CompleteWrite 提交槽位中的写操作，
// 阻塞到完成并返回确认的字节数；Receive 发起一次接收并用结果重置读取流。
// Err 返回使驱动方失败的错误。
type Driver interface {
	sync.Locker
	Err() error
	CompleteWrite(deadline time.Time) (int, error)
	Receive(deadline time.Time) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Connection builds the capability object over writer and reader.
// Close only retires the capability, the driver owns the socket.
func Connection(writer *stream.Writer, reader *rope.Reader, driver Driver) net.Conn {
	return &connection{
		writer: writer,
		reader: reader,
		driver: driver,
	}
}

type connection struct {
	writer        *stream.Writer
	reader        *rope.Reader
	staging       []byte
	driver        Driver
	closed        atomic.Bool
	readDeadline  atomic.Int64
	writeDeadline atomic.Int64
}

func (conn *connection) Read(b []byte) (n int, err error) {
	if conn.closed.Load() {
		err = net.ErrClosed
		return
	}
	if len(b) == 0 {
		return
	}
	conn.driver.Lock()
	defer conn.driver.Unlock()
	for conn.reader.Empty() {
		if err = conn.driver.Receive(loadDeadline(&conn.readDeadline)); err != nil {
			return
		}
	}
	n, err = conn.reader.Read(iovec.Buffers{b})
	return
}

func (conn *connection) Write(b []byte) (n int, err error) {
	if conn.closed.Load() {
		err = net.ErrClosed
		return
	}
	if len(b) == 0 {
		return
	}
	conn.driver.Lock()
	defer conn.driver.Unlock()
	if err = conn.driver.Err(); err != nil {
		return
	}
	// the engine reuses b as soon as Write returns, so the submission references a copy
	// that is dropped when the write fails and may still be in flight
	if cap(conn.staging) < len(b) {
		conn.staging = make([]byte, len(b))
	}
	staged := conn.staging[:len(b)]
	copy(staged, b)
	if _, err = conn.writer.Write(iovec.Buffers{staged}); err != nil {
		return
	}
	if n, err = conn.driver.CompleteWrite(loadDeadline(&conn.writeDeadline)); err != nil {
		conn.staging = nil
	}
	return
}

func (conn *connection) Close() error {
	conn.closed.Store(true)
	return nil
}

func (conn *connection) LocalAddr() net.Addr {
	return conn.driver.LocalAddr()
}

func (conn *connection) RemoteAddr() net.Addr {
	return conn.driver.RemoteAddr()
}

func (conn *connection) SetDeadline(t time.Time) error {
	storeDeadline(&conn.readDeadline, t)
	storeDeadline(&conn.writeDeadline, t)
	return nil
}

func (conn *connection) SetReadDeadline(t time.Time) error {
	storeDeadline(&conn.readDeadline, t)
	return nil
}

func (conn *connection) SetWriteDeadline(t time.Time) error {
	storeDeadline(&conn.writeDeadline, t)
	return nil
}

func storeDeadline(v *atomic.Int64, t time.Time) {
	if t.IsZero() {
		v.Store(0)
		return
	}
	v.Store(t.UnixNano())
}

func loadDeadline(v *atomic.Int64) time.Time {
	if ns := v.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}
