package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/msgsync/internal/daemon"
	"github.com/matheus3301/msgsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	siteFlag := flag.String("site", "", "site id (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.msgsync/config.toml)")
	flag.Parse()

	site := session.Resolve(*siteFlag)
	if err := session.ValidateName(site); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.EnsureDir(site); err != nil {
		fmt.Fprintf(os.Stderr, "error: create site directory: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SiteID: site, ConfigPath: *configFlag}),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app.Run()
}
