// Package riotls is a TLS client whose socket I/O runs over a submission/completion
// substrate (io_uring, or a blocking stand-in), one operation in flight at a time.
package riotls

import (
	"context"
	"net"
	"runtime"
	"time"

	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/brickingsoft/riotls/transport/adaptor"
	"github.com/google/uuid"
)

// Dialer
// TLS 拨号器。
//
// 每次拨号独占一个基座与一个关联标识分配器：解析地址，经由基座连接，再通过能力对象完成握手。
type Dialer struct {
	options Options
}

func NewDialer(options ...Option) (*Dialer, error) {
	opts := defaultOptions()
	for _, option := range options {
		if err := option(&opts); err != nil {
			return nil, err
		}
	}
	return &Dialer{options: opts}, nil
}

// Dial connects to address ("host:port", or "host" for port 443) and completes the handshake.
func Dial(address string, options ...Option) (*Conn, error) {
	return DialContext(context.Background(), address, options...)
}

// DialContext is Dial with a context. The context deadline bounds every blocking wait of the
// dial; once the handshake is done the context no longer affects the connection.
func DialContext(ctx context.Context, address string, options ...Option) (*Conn, error) {
	d, err := NewDialer(options...)
	if err != nil {
		return nil, err
	}
	return d.DialContext(ctx, address)
}

func (d *Dialer) Dial(address string) (*Conn, error) {
	return d.DialContext(context.Background(), address)
}

func (d *Dialer) DialContext(ctx context.Context, address string) (conn *Conn, err error) {
	opts := d.options
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()

	host, port, splitErr := sys.SplitHostPort(address, DefaultPort)
	if splitErr != nil {
		return nil, dialError(nil, splitErr)
	}
	c := &Conn{
		id: uuid.NewString(),
	}
	c.log = opts.Logger.With().Str("conn", c.id).Str("host", host).Logger()

	roots, rootsErr := opts.roots()
	if rootsErr != nil {
		return nil, dialError(nil, rootsErr)
	}
	addrs, resolveErr := opts.Resolver.Resolve(ctx, host, port)
	if resolveErr != nil {
		return nil, dialError(nil, resolveErr)
	}
	c.log.Debug().Int("addrs", len(addrs)).Msg("resolved")

	substrate, substrateErr := opts.substrate()
	if substrateErr != nil {
		return nil, dialError(nil, substrateErr)
	}
	if opts.Registerer != nil {
		metrics, metricsErr := ring.NewMetrics(opts.Registerer)
		if metricsErr != nil {
			_ = substrate.Close()
			return nil, dialError(nil, metricsErr)
		}
		substrate = ring.Instrument(substrate, metrics)
	}
	c.driver = newDriver(substrate, opts.NewAllocator(), c.log, opts.ReadBufferSize)

	fail := func(cause error) (*Conn, error) {
		c.setState(Failed)
		if shutdownErr := c.driver.shutdown(); shutdownErr != nil {
			c.log.Debug().Err(shutdownErr).Msg("shutdown")
		}
		return nil, dialError(c.driver.RemoteAddr(), cause)
	}

	if err = ctx.Err(); err != nil {
		return fail(err)
	}
	c.setState(Connecting)
	if err = c.driver.connect(addrs, opts.Sockets, deadline); err != nil {
		return fail(err)
	}
	c.setState(Connected)

	serverName := opts.ServerName
	if serverName == "" {
		if serverName, err = sys.ASCIIHost(host); err != nil {
			serverName = host
		}
	}
	c.capability = adaptor.Connection(c.driver.writer, c.driver.reader, c.driver)
	c.setState(Handshaking)
	_ = c.capability.SetDeadline(deadline)
	session, hsErr := opts.Engine.Handshake(ctx, c.capability, serverName, roots)
	if hsErr != nil {
		return fail(hsErr)
	}
	_ = c.capability.SetDeadline(time.Time{})
	c.session = session
	c.cleanup = runtime.AddCleanup(c, (*driver).collect, c.driver)
	c.setState(ApplicationData)
	c.log.Debug().
		Uint16("version", session.State().Version).
		Str("alpn", session.State().NegotiatedProtocol).
		Msg("handshake complete")
	conn = c
	return
}

func dialError(addr net.Addr, err error) error {
	return &net.OpError{Op: errMetaOpDial, Net: "tcp", Addr: addr, Err: err}
}
