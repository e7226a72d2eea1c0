// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configFile is the global --config flag.
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "swcore",
	Short: "swcore - software-defined Ethernet switch core",
	Long: `swcore is a software-defined Ethernet switch core with a plugin
forwarding pipeline.

Features:
  - Layer-2 forwarding with MAC address learning
  - 802.1Q VLAN membership, tag policies, and per-VLAN rate limiting
  - Strict-priority egress queueing
  - IPv4 routing table with longest-prefix match
  - PTP time-tracking control loop (PI / PII / linear regression)
  - Prometheus metrics and pcap capture tap`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/swcore/config.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
