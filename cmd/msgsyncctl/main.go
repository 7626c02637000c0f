package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/tui/client"
	"github.com/spf13/cobra"
)

var (
	siteFlag    string
	jsonOutput  bool
	callTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "msgsyncctl",
	Short: "Control a running msgsyncd",
	Long: "Command-line client for msgsyncd.\n" +
		"Send messages, inspect the offline queue and trigger syncs for one site.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&siteFlag, "site", "", "site id (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 30*time.Second, "per-call timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect dials the daemon of the selected site.
func connect() (*client.Client, string, error) {
	site := session.Resolve(siteFlag)
	if err := session.ValidateName(site); err != nil {
		return nil, "", err
	}
	c, err := client.New(session.SocketPath(site))
	if err != nil {
		return nil, "", fmt.Errorf("cannot connect to daemon for site %q: %w", site, err)
	}
	return c, site, nil
}

// withClient runs fn against the daemon with the call timeout applied.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, _, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}
