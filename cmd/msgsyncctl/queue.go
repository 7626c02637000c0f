package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List messages waiting to be sent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			msgs, err := c.ListQueued(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(msgs)
			}
			if len(msgs) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			for _, m := range msgs {
				state := "waiting"
				if m.DeviceOffline {
					state = "offline"
				}
				fmt.Printf("%s  %-22s %-8s %s\n", formatMillis(m.CreatedAt), m.Target, state, m.Text)
			}
			return nil
		})
	},
}
