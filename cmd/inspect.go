package main

import (
	"github.com/spf13/cobra"

	"github.com/samaelod/netimp/capture"
)

func newInspectCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize a pcap or pcapng capture of relayed datagrams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := capture.Read(args[0])
			if err != nil {
				return err
			}
			capture.Show(cmd.OutOrStdout(), records, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "show only the last N datagrams (0 shows all)")
	return cmd
}
