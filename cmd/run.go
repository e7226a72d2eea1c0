package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helioslabs/swcore/internal/config"
	"github.com/helioslabs/swcore/internal/daemon"
	"github.com/helioslabs/swcore/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the switch core in the foreground",
	Long: `Run the switch core in the foreground until interrupted.

The configuration file is loaded once at startup; SIGINT or SIGTERM
shuts the switch down cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSwitch()
	},
}

func runSwitch() {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("failed to load config", err)
	}
	log.Init(&cfg.Log)

	d, err := daemon.New(cfg)
	if err != nil {
		exitWithError("failed to assemble switch", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		exitWithError("switch terminated", err)
	}
}
