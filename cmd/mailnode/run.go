package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node with one printing mailbox per worker thread",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		node, err := StartNode(ctx, cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		WatchPeers(node.svc)

		fmt.Fprintln(cmd.OutOrStdout(), "node:", node.Me().Debug())

		for thread := range cfg.Threads {
			addr, err := node.Open(thread)
			if err != nil {
				node.Shutdown(context.Background())
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "mailbox:", addressText(addr))
		}

		<-ctx.Done()

		fmt.Fprintln(os.Stderr, "shutting down")
		node.Shutdown(context.Background())

		return nil
	},
}
