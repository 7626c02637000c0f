package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/target"
	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

var syncOnlyOffline bool

func init() {
	syncCmd.Flags().BoolVar(&syncOnlyOffline, "only-offline", false, "sync only messages queued while the device was offline")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [conversation:ID|user:ID]",
	Short: "Send queued messages now",
	Long:  "Send the queued messages of one target, or of every target when none is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			var (
				reply *api.SyncReply
				err   error
			)
			if len(args) == 1 {
				t, perr := target.Parse(args[0])
				if perr != nil {
					return perr
				}
				reply, err = c.SyncNow(ctx, t.String())
			} else {
				reply, err = c.SyncAll(ctx, syncOnlyOffline)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(reply)
			}
			printSync(reply)
			if reply.Error != "" {
				return errors.New(reply.Error)
			}
			return nil
		})
	},
}

func printSync(reply *api.SyncReply) {
	if len(reply.Results) == 0 {
		fmt.Println("Nothing to sync.")
	}
	for _, r := range reply.Results {
		fmt.Printf("%-22s sent %d, skipped %d\n", r.Target, r.Sent, r.Skipped)
		for _, w := range r.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
}
