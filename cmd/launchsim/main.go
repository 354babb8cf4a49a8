// Package main is a command-line simulator for the launchpad engine. It boots
// the same container the server uses against a scratch ledger, launches a token
// and drives trades through the bonding curve until the token graduates.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitSuccess = 0
	exitError   = 1
)

var rootCmd = &cobra.Command{
	Use:   "launchsim",
	Short: "Simulate token launches on the bonding-curve launchpad",
	Long: `launchsim runs the launchpad engine in-process.

Configuration comes from the same environment variables as the server
(BUY_TAX_BPS, CURVE_KIND, GRADUATION_THRESHOLD_BPS, NETWORK_FILE, ...).
Unless --data-dir is given, every run uses a fresh scratch ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "ledger directory (default: a fresh temporary directory)")
	rootCmd.PersistentFlags().String("log-level", "warn", "engine log level")
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON instead of a table")

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newCurveCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
