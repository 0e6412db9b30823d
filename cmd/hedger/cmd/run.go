package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/backtest"
	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/sim"
	"github.com/rustyeddy/hedger/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a config file",
	Long: `Run a simulation using settings from a configuration file.

The config file seeds the account and starting positions, sets the strategy
settings, and supplies prices either inline (simulation.price_steps) or as a
CSV replay (simulation.prices_csv). Time in the engine follows the feed.

Example:
  hedger run -f examples/configs/hedge.yaml
  hedger run -f examples/configs/replay.yaml --close-end --state out.json`,
	RunE: runRun,
}

var (
	runConfigPath string
	runStrategy   string
	runCloseEnd   bool
	runPace       bool
	runStatePath  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "frame strategy: noop or trend-batch (default from simulation.batch)")
	runCmd.Flags().BoolVar(&runCloseEnd, "close-end", false, "close every open position when the feed ends")
	runCmd.Flags().BoolVar(&runPace, "pace", false, "sleep for each step's delay instead of replaying at full speed")
	runCmd.Flags().StringVar(&runStatePath, "state", "", "write the final engine state as JSON to this path")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Printf("Running simulation with config: %s\n", runConfigPath)
	fmt.Printf("  Account: %s (Margin Balance: %.2f %s)\n", cfg.Account.ID, cfg.Account.MarginBalance, cfg.Account.Currency)
	fmt.Printf("  Journal: %s\n", journalLabel(cfg.Journal))
	fmt.Println()

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	start := time.Now().UTC().Truncate(time.Second)
	src, err := openFeed(cfg.Simulation, start)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}

	strat, err := pickStrategy(cfg.Simulation)
	if err != nil {
		src.Close()
		return err
	}

	clock := backtest.NewReplayClock(start)
	eng := sim.NewEngine(cfg.Engine, cfg.Account.MarginBalance, cfg.Settings,
		sim.WithLogger(logger),
		sim.WithJournal(j),
		sim.WithClock(clock.Now),
	)
	defer eng.Close()

	if err := seedPositions(eng, cfg.Simulation.Positions, logger); err != nil {
		src.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := &backtest.Runner{
		Engine:   eng,
		Feed:     src,
		Strategy: strat,
		Clock:    clock,
		Options: backtest.RunnerOptions{
			CloseEnd: runCloseEnd,
			Play:     feed.PlayOptions{Pace: runPace},
		},
	}
	res, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if n := eng.PendingReopens(); n > 0 {
		logger.Info("run ended with auto-reopens still scheduled", zap.Int("pending", n))
	}

	fmt.Println()
	backtest.PrintResult(os.Stdout, cfg.Account.MarginBalance, res)

	if runStatePath != "" {
		if err := sim.SaveState(runStatePath, eng.Export()); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		fmt.Printf("✓ State saved to %s\n", runStatePath)
	}
	switch cfg.Journal.Type {
	case "csv":
		fmt.Printf("\nResults saved to:\n  - %s\n  - %s\n", cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		fmt.Printf("\nResults saved to: %s\n", cfg.Journal.DBPath)
	}
	return nil
}

func pickStrategy(sc config.SimulationConfig) (strategies.FrameStrategy, error) {
	if runStrategy == "" {
		s, err := strategies.FromConfig(sc)
		if err != nil {
			return nil, fmt.Errorf("strategy: %w", err)
		}
		return s, nil
	}
	s, err := strategies.ByName(runStrategy, sc.Batch)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	return s, nil
}

func journalLabel(jc config.JournalConfig) string {
	switch jc.Type {
	case "csv":
		return "csv (" + jc.TradesFile + ", " + jc.EquityFile + ")"
	case "sqlite":
		return "sqlite (" + jc.DBPath + ")"
	default:
		return "none"
	}
}
