package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hedger",
	Short: "A simulated leveraged-trading risk engine",
	Long: `Hedger simulates a USDT-margined futures account and the automated risk
strategies that manage it.

It provides tools for:
  - Replaying scripted or recorded prices through the risk engine
  - Stop-loss, take-profit and automatic hedging of losing positions
  - Hedge-exit strategies and debt carrying across hedge cycles
  - Serving the command surface over HTTP with a websocket update stream
  - Querying the SQLite trade journal`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level from the config (debug, info, warn, error)")
}
