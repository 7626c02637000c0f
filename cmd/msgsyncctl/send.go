package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation:ID|user:ID> <text...>",
	Short: "Send a message, queueing it when offline",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target.Parse(args[0])
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		return withClient(func(ctx context.Context, c *client.Client) error {
			reply, err := c.Submit(ctx, api.SubmitRequest{Target: t.String(), Text: text})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(reply)
			}
			if reply.Queued {
				fmt.Printf("Queued for %s, it will be sent on the next sync\n", t)
				return nil
			}
			fmt.Printf("Sent to %s (message %d)\n", t, reply.MessageID)
			return nil
		})
	},
}
