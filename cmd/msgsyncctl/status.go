package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue sizes and sync checkpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			fmt.Printf("Site:    %s\n", st.SiteID)
			fmt.Printf("User:    %d\n", st.UserID)
			fmt.Printf("Network: %s\n", st.Network)
			fmt.Printf("Queued:  %d\n", st.Queued)
			fmt.Printf("Views:   %d\n", st.Views)
			if len(st.Targets) == 0 {
				return nil
			}
			fmt.Println()
			fmt.Printf("%-22s %6s  %-8s %s\n", "TARGET", "QUEUED", "SYNCING", "LAST SYNC")
			for _, t := range st.Targets {
				fmt.Printf("%-22s %6d  %-8v %s\n", t.Target, t.Queued, t.Syncing, formatMillis(t.LastSyncMs))
			}
			return nil
		})
	},
}
