package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	watchPrefix string
	watchTarget string
)

func init() {
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only events whose kind starts with this, e.g. sync.")
	watchCmd.Flags().StringVar(&watchTarget, "target", "", "only events for this target")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := c.Watch(ctx, api.WatchRequest{Prefix: watchPrefix, Target: watchTarget})
		if err != nil {
			return err
		}
		for {
			env, err := w.Recv()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if jsonOutput {
				if err := outputJSON(env); err != nil {
					return err
				}
				continue
			}
			ts := time.UnixMilli(env.OccurredAtMs).Format("15:04:05")
			fmt.Printf("%s %-28s %-22s %v\n", ts, env.Kind, env.Target, env.Payload)
		}
	},
}
