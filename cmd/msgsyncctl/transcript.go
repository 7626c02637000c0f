package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/msgsync/internal/target"
	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

var transcriptPages int

func init() {
	transcriptCmd.Flags().IntVar(&transcriptPages, "pages", 1, "pages of history to load")
	rootCmd.AddCommand(transcriptCmd)
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <conversation:ID|user:ID>",
	Short: "Print a discussion, queued messages included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := target.Parse(args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			v, err := c.OpenDiscussion(ctx, t.String())
			if err != nil {
				return err
			}
			handle := v.View
			defer func() { _ = c.CloseDiscussion(context.WithoutCancel(ctx), handle) }()

			for i := 1; i < transcriptPages && v.CanLoadMore; i++ {
				if v, err = c.LoadPrevious(ctx, handle); err != nil {
					return err
				}
			}
			if jsonOutput {
				return outputJSON(v)
			}

			fmt.Printf("== %s ==\n", v.Title)
			for _, m := range v.Messages {
				if m.ShowDate {
					fmt.Printf("\n-- %s --\n", time.UnixMilli(m.CreatedAt).Format("2006-01-02"))
				}
				sender := m.Sender
				if sender == "" {
					sender = fmt.Sprintf("#%d", m.SenderID)
				}
				mark := ""
				if m.Pending {
					mark = " (queued)"
				}
				fmt.Printf("%s %s: %s%s\n", time.UnixMilli(m.CreatedAt).Format("15:04"), sender, m.Text, mark)
			}
			return nil
		})
	},
}
