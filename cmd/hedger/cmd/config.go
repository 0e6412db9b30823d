package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/hedger/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for simulations and the server.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  hedger config init -o my-config.yaml
  hedger config validate -f my-config.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings. The format follows
the file extension (.yaml, .yml or .json).

Example:
  hedger config init -o simulation.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  hedger config validate -f simulation.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "simulation.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  hedger run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Account: %s (%.2f %s)\n", cfg.Account.ID, cfg.Account.MarginBalance, cfg.Account.Currency)
	fmt.Printf("  Strategies: %s\n", describeSettings(cfg.Settings))
	fmt.Printf("  Positions: %d seeded, %d price steps\n", len(cfg.Simulation.Positions), len(cfg.Simulation.PriceSteps))
	if cfg.Simulation.PricesCSV != "" {
		fmt.Printf("  Replay: %s\n", cfg.Simulation.PricesCSV)
	}
	fmt.Printf("  Journal: %s\n", journalLabel(cfg.Journal))
	return nil
}

func describeSettings(s config.Settings) string {
	var on []string
	if s.StopLoss != nil {
		on = append(on, "stop-loss")
	}
	if s.TakeProfit != nil {
		on = append(on, "take-profit("+string(s.TakeProfit.Mode)+")")
	}
	if s.Hedging != nil {
		on = append(on, "hedging")
	}
	he := s.HedgeExit
	if he.OriginalProfitClear != nil {
		on = append(on, "original-profit-clear")
	}
	if he.HedgeProfitClear != nil {
		on = append(on, "hedge-profit-clear")
	}
	if he.CallbackProfitClear != nil {
		on = append(on, "callback-profit-clear")
	}
	if he.SafeClear != nil {
		on = append(on, "safe-clear")
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ", ")
}
