package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helioslabs/swcore/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a swcore configuration file without starting the switch.

This is useful for pre-checking configuration before deployment.

Examples:
  swcore validate -c /etc/swcore/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

func runValidateCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALID: %d port(s), %d vlan(s), %d static route(s)\n",
		len(cfg.Switch.Ports),
		len(cfg.Vlan.Vlans),
		len(cfg.Route.Static),
	)
}
