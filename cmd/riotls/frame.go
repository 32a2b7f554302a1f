package main

import (
	"fmt"

	"github.com/brickingsoft/riotls/codec"
	"github.com/spf13/cobra"
)

func newFrameCmd(load func(*cobra.Command) (*session, error)) *cobra.Command {
	var maxLength int

	cmd := &cobra.Command{
		Use:   "frame <host:port> <message>",
		Short: "Send one length-field frame and print the framed reply",
		Long: `frame writes <message> behind an 8-byte big-endian length, then reads exactly
one reply frame of the same shape and prints its body.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if flushErr := s.flushMetrics(); flushErr != nil {
					s.log.Warn().Err(flushErr).Msg("failed to write metrics")
				}
			}()

			conn, err := s.dial(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			n, err := codec.LengthFieldEncode(conn, []byte(args[1]))
			if err != nil {
				return fmt.Errorf("failed to write frame: %w", err)
			}
			s.log.Debug().Int("bytes", n).Msg("frame sent")

			decoder := codec.LengthFieldDecoder{MaxLength: maxLength}
			reply, err := codec.DecodeOnce[codec.LengthFieldMessage](conn, &decoder)
			if err != nil {
				return fmt.Errorf("failed to read frame: %w", err)
			}
			_, err = s.stdout.Write(append(reply.Bytes, '\n'))
			return err
		},
	}
	cmd.Flags().IntVar(&maxLength, "max-length", codec.DefaultMaxLength, "Largest reply frame accepted")
	return cmd
}
