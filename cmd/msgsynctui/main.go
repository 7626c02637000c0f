package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/tui"
	"github.com/matheus3301/msgsync/internal/tui/client"
)

func main() {
	siteFlag := flag.String("site", "", "site id (overrides config default)")
	openFlag := flag.String("open", "", "discussion to open on start, e.g. conversation:7 or user:42")
	flag.Parse()

	site := session.Resolve(*siteFlag)
	if err := session.ValidateName(site); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	socketPath := session.SocketPath(site)

	// Probe daemon health; auto-start if needed.
	if !client.Probe(socketPath, 2*time.Second) {
		fmt.Fprintf(os.Stderr, "daemon not running for site %q, starting...\n", site)
		if err := startDaemon(site); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !client.WaitReady(socketPath, 10*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready, see %s\n", session.LogPath(site))
			os.Exit(1)
		}
	}

	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	app := tui.NewApp(c)
	if *openFlag != "" {
		cmd := tui.Command{Name: "open", Args: *openFlag}
		t, err := cmd.Target()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		app.Open(t.String())
	}
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func startDaemon(site string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	daemon := filepath.Join(filepath.Dir(executable), "msgsyncd")
	if _, err := os.Stat(daemon); err != nil {
		daemon = "msgsyncd"
	}

	cmd := exec.Command(daemon, "--site", site)
	// Startup errors show up in the terminal before the TUI takes over.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
