package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samaelod/netimp/capture"
	"github.com/samaelod/netimp/engine"
)

func newReplayCmd() *cobra.Command {
	var (
		to     string
		from   string
		speed  float64
		linger time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Resend the datagrams of a capture to a relay at their recorded spacing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := netip.ParseAddrPort(to)
			if err != nil {
				return fmt.Errorf("invalid --to %q: %w", to, err)
			}
			var src netip.Addr
			if from != "" {
				if src, err = netip.ParseAddr(from); err != nil {
					return fmt.Errorf("invalid --from %q: %w", from, err)
				}
			}

			records, err := capture.Read(args[0])
			if err != nil {
				return err
			}
			datagrams := capture.Datagrams(records, src)
			if len(datagrams) == 0 {
				return fmt.Errorf("no datagrams to replay in %s", args[0])
			}

			log, err := newLogger(true)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync()

			bindIP := netip.IPv4Unspecified()
			if dst.Addr().Is6() && !dst.Addr().Is4In6() {
				bindIP = netip.IPv6Unspecified()
			}
			conn, err := engine.Bind(bindIP, 0)
			if err != nil {
				return err
			}
			defer conn.Close()

			log.Info("replaying",
				zap.String("file", args[0]),
				zap.Int("datagrams", len(datagrams)),
				zap.Stringer("to", dst),
			)

			stats, err := engine.NewReplayer(conn, dst, speed, log).Run(cmd.Context(), datagrams, linger)
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d, replies %d\n", stats.Sent, stats.Failed, stats.Replies)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&to, "to", "", "relay address, IP:PORT")
	f.StringVar(&from, "from", "", "only replay datagrams sent by this IP")
	f.Float64Var(&speed, "speed", 1, "replay speed multiplier")
	f.DurationVar(&linger, "linger", time.Second, "how long to keep counting replies after the last send")
	cmd.MarkFlagRequired("to")

	return cmd
}
