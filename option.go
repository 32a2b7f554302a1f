package riotls

import (
	"crypto/x509"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/riotls/pkg/record"
	"github.com/brickingsoft/riotls/pkg/ring"
	"github.com/brickingsoft/riotls/pkg/security"
	"github.com/brickingsoft/riotls/pkg/sys"
	"github.com/brickingsoft/riotls/pkg/tags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultPort           = 443
	DefaultReadBufferSize = 4096
)

type Options struct {
	Substrate      ring.Kind
	NewSubstrate   func(options ...ring.Option) (ring.Substrate, error)
	Entries        uint32
	ReadBufferSize int
	Timeout        time.Duration
	Engine         security.Engine
	RootCAs        *x509.CertPool
	CAFiles        []string
	ServerName     string
	NewAllocator   func() tags.Allocator
	Logger         zerolog.Logger
	Registerer     prometheus.Registerer
	VerifyBuffers  bool
	Resolver       sys.Resolver
	Sockets        sys.SocketFactory
}

func defaultOptions() Options {
	return Options{
		Substrate:      ring.KindAuto,
		Entries:        ring.DefaultEntries,
		ReadBufferSize: DefaultReadBufferSize,
		Engine:         security.Standard{},
		NewAllocator: func() tags.Allocator {
			return tags.NewMonotonic()
		},
		Logger:   zerolog.Nop(),
		Resolver: sys.NetResolver{},
		Sockets:  sys.Sockets{NoDelay: true},
	}
}

func (options *Options) substrate() (ring.Substrate, error) {
	ringOptions := []ring.Option{
		ring.WithEntries(options.Entries),
		ring.WithVerifyBuffers(options.VerifyBuffers),
	}
	if options.NewSubstrate != nil {
		return options.NewSubstrate(ringOptions...)
	}
	return ring.New(options.Substrate, ringOptions...)
}

func (options *Options) roots() (*x509.CertPool, error) {
	if options.RootCAs != nil {
		return options.RootCAs, nil
	}
	return security.LoadTrustRoots(options.CAFiles...)
}

type Option func(options *Options) (err error)

// WithSubstrate
// 设置异步 I/O 基座类型。默认 ring.KindAuto，即优先 io_uring，不可用时退回阻塞实现。
func WithSubstrate(kind ring.Kind) Option {
	return func(options *Options) (err error) {
		options.Substrate = kind
		return
	}
}

// WithSubstrateFactory
// 设置基座构造函数，覆盖 WithSubstrate。
func WithSubstrateFactory(fn func(options ...ring.Option) (ring.Substrate, error)) Option {
	return func(options *Options) (err error) {
		options.NewSubstrate = fn
		return
	}
}

// WithRingEntries
// 设置提交队列深度。
func WithRingEntries(entries uint32) Option {
	return func(options *Options) (err error) {
		if entries > ring.MaxEntries {
			err = errors.New(
				"ring entries is too large",
				errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
				errors.WithMeta("entries", entries),
			)
			return
		}
		if entries > 0 {
			options.Entries = entries
		}
		return
	}
}

// WithReadBufferSize
// 设置单次接收的最小长度。实际长度会按当前 TLS 记录缺少的字节数放大，上限为一个完整记录。
func WithReadBufferSize(size int) Option {
	return func(options *Options) (err error) {
		if size < 1 {
			return
		}
		options.ReadBufferSize = min(size, record.MaxRecord)
		return
	}
}

// WithTimeout
// 设置拨号（解析、连接、握手）的总超时。
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) (err error) {
		if timeout > 0 {
			options.Timeout = timeout
		}
		return
	}
}

// WithTLSEngine
// 设置 TLS 引擎，默认 crypto/tls。
func WithTLSEngine(engine security.Engine) Option {
	return func(options *Options) (err error) {
		if engine == nil {
			err = errors.New("tls engine is nil", errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			return
		}
		options.Engine = engine
		return
	}
}

// WithRootCAs
// 设置信任根。
func WithRootCAs(pool *x509.CertPool) Option {
	return func(options *Options) (err error) {
		options.RootCAs = pool
		return
	}
}

// WithCAFiles
// 从 PEM 文件加载信任根，替代系统证书池。
func WithCAFiles(files ...string) Option {
	return func(options *Options) (err error) {
		options.CAFiles = append(options.CAFiles, files...)
		return
	}
}

// WithServerName
// 设置 SNI 与证书校验使用的主机名，默认取拨号地址中的主机。
func WithServerName(name string) Option {
	return func(options *Options) (err error) {
		options.ServerName = name
		return
	}
}

// WithTagAllocator
// 设置关联标识分配器的构造函数，每个连接一个分配器。
func WithTagAllocator(fn func() tags.Allocator) Option {
	return func(options *Options) (err error) {
		if fn != nil {
			options.NewAllocator = fn
		}
		return
	}
}

// WithLogger
func WithLogger(logger zerolog.Logger) Option {
	return func(options *Options) (err error) {
		options.Logger = logger
		return
	}
}

// WithRegisterer
// 设置 prometheus 注册器，设置后基座的提交与完成会被计数。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(options *Options) (err error) {
		options.Registerer = reg
		return
	}
}

// WithVerifyBuffers
// 在完成时校验写缓冲区未被修改，被修改则 panic。
func WithVerifyBuffers(verify bool) Option {
	return func(options *Options) (err error) {
		options.VerifyBuffers = verify
		return
	}
}

// WithResolver
func WithResolver(resolver sys.Resolver) Option {
	return func(options *Options) (err error) {
		if resolver != nil {
			options.Resolver = resolver
		}
		return
	}
}

// WithSocketFactory
func WithSocketFactory(factory sys.SocketFactory) Option {
	return func(options *Options) (err error) {
		if factory != nil {
			options.Sockets = factory
		}
		return
	}
}
