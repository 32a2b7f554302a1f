package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brickingsoft/riotls"
	"github.com/brickingsoft/riotls/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// session is what every network command needs once flags and config are resolved.
type session struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	stdout   io.Writer
	stderr   io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "riotls",
		Short: "TLS client over an io_uring submission/completion ring",
		Long: `riotls dials TLS servers with every socket operation submitted to an io_uring
ring (or a blocking stand-in), one operation in flight at a time.

Settings are read from flags, then RIOTLS_* environment variables, then riotls.yaml.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to configuration file")
	flags.Duration("timeout", 30*time.Second, "Dial and request timeout")
	flags.String("substrate", "auto", "Substrate: auto, uring or blocking")
	flags.Uint32("entries", 8, "Ring submission queue entries")
	flags.Int("read-buffer", riotls.DefaultReadBufferSize, "Minimum receive size in bytes")
	flags.String("fingerprint", "none", "ClientHello fingerprint: none, chrome, firefox, safari, ios, edge, randomized")
	flags.StringSlice("alpn", []string{"http/1.1"}, "ALPN protocols to offer")
	flags.StringSlice("ca-file", nil, "PEM file with trusted roots (repeatable)")
	flags.String("server-name", "", "Override the SNI and verification name")
	flags.Bool("verify-buffers", false, "Check in-flight buffers for mutation")
	flags.String("allocator", "monotonic", "Tag allocator: monotonic, fixed, randomized, arena")
	flags.Int("arena-size", 8, "Slots of the arena tag allocator")
	flags.Bool("no-delay", true, "Set TCP_NODELAY on the socket")
	flags.String("metrics", "", "Write ring metrics in text format to this file on exit (- for stderr)")
	flags.Bool("debug", false, "Enable debug logging")

	load := func(cmd *cobra.Command) (*session, error) {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return nil, err
		}
		level := zerolog.InfoLevel
		if cfg.Debug {
			level = zerolog.DebugLevel
		}
		s := &session{
			cfg:    cfg,
			log:    zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(level).With().Timestamp().Logger(),
			stdout: stdout,
			stderr: stderr,
		}
		if cfg.Metrics != "" {
			s.registry = prometheus.NewRegistry()
		}
		return s, nil
	}

	cmd.AddCommand(newGetCmd(load))
	cmd.AddCommand(newFrameCmd(load))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "riotls %s\n", Version)
			_, _ = fmt.Fprintf(out, "  Commit: %s\n", Commit)
		},
	}
}

// dial connects with the configured options and the session logger and registry.
func (s *session) dial(ctx context.Context, address string) (*riotls.Conn, error) {
	options, err := s.cfg.DialOptions()
	if err != nil {
		return nil, err
	}
	options = append(options, riotls.WithLogger(s.log))
	if s.registry != nil {
		options = append(options, riotls.WithRegisterer(s.registry))
	}
	conn, err := riotls.DialContext(ctx, address, options...)
	if err != nil {
		return nil, err
	}
	state := conn.ConnectionState()
	s.log.Info().
		Str("conn", conn.ID()).
		Stringer("remote", conn.RemoteAddr()).
		Str("version", tls.VersionName(state.Version)).
		Str("alpn", state.NegotiatedProtocol).
		Bool("resumed", state.DidResume).
		Msg("connected")
	if s.cfg.Timeout > 0 {
		if err = conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// flushMetrics writes the registry in the Prometheus text format.
func (s *session) flushMetrics() error {
	if s.registry == nil {
		return nil
	}
	families, err := s.registry.Gather()
	if err != nil {
		return err
	}
	w := s.stderr
	if s.cfg.Metrics != "-" {
		f, createErr := os.Create(s.cfg.Metrics)
		if createErr != nil {
			return createErr
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	for _, mf := range families {
		if _, err = expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
