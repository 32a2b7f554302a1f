package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/brickingsoft/riotls/internal/compress"
	"github.com/spf13/cobra"
)

func newGetCmd(load func(*cobra.Command) (*session, error)) *cobra.Command {
	var include bool

	cmd := &cobra.Command{
		Use:   "get <https-url>",
		Short: "Fetch a URL with one HTTP/1.1 request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}
			if target.Scheme != "https" || target.Host == "" {
				return fmt.Errorf("invalid url %q: only https urls are supported", args[0])
			}

			s, err := load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if flushErr := s.flushMetrics(); flushErr != nil {
					s.log.Warn().Err(flushErr).Msg("failed to write metrics")
				}
			}()

			address := target.Host
			if target.Port() == "" {
				address = net.JoinHostPort(target.Hostname(), "443")
			}
			conn, err := s.dial(cmd.Context(), address)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target.String(), nil)
			if err != nil {
				return err
			}
			req.Close = true
			req.Header.Set("User-Agent", "riotls/"+Version)
			req.Header.Set("Accept-Encoding", compress.Supported)
			// one writev for the whole request head
			w := bufio.NewWriter(conn)
			if err = req.Write(w); err != nil {
				return fmt.Errorf("failed to write request: %w", err)
			}
			if err = w.Flush(); err != nil {
				return fmt.Errorf("failed to write request: %w", err)
			}

			resp, err := http.ReadResponse(bufio.NewReader(conn), req)
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if include {
				_, _ = fmt.Fprintf(s.stdout, "%s %s\r\n", resp.Proto, resp.Status)
				_ = resp.Header.Write(s.stdout)
				_, _ = fmt.Fprint(s.stdout, "\r\n")
			}

			encoding := resp.Header.Get("Content-Encoding")
			body := compress.NewReader(resp.Body, encoding)
			if body == nil {
				return fmt.Errorf("unsupported content encoding %q", encoding)
			}
			n, err := io.Copy(s.stdout, body)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
			s.log.Debug().
				Int("status", resp.StatusCode).
				Str("encoding", strings.ToLower(encoding)).
				Int64("bytes", n).
				Msg("response")
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&include, "include", "i", false, "Print the status line and headers")
	return cmd
}
