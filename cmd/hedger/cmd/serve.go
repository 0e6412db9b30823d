package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/hedger/api"
	"github.com/rustyeddy/hedger/backtest"
	"github.com/rustyeddy/hedger/config"
	"github.com/rustyeddy/hedger/feed"
	"github.com/rustyeddy/hedger/journal"
	"github.com/rustyeddy/hedger/sim"
	"github.com/rustyeddy/hedger/stream"
	"github.com/rustyeddy/hedger/strategies"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP and websocket",
	Long: `Start the engine behind an HTTP command surface.

REST commands live under /api, engine updates stream on /ws and Prometheus
metrics on /metrics. When the config has prices (simulation.prices_csv or
simulation.price_steps) they are replayed, one frame per server.tick_interval.

Example:
  hedger serve -f examples/configs/replay.yaml
  hedger serve --restore state.json --save state.json --no-replay`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveAddr       string
	serveRestore    string
	serveSave       string
	serveNoReplay   bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "f", "", "path to config file (default settings when empty)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveRestore, "restore", "", "restore engine state from this JSON file instead of seeding")
	serveCmd.Flags().StringVar(&serveSave, "save", "", "write engine state to this JSON file on shutdown")
	serveCmd.Flags().BoolVar(&serveNoReplay, "no-replay", false, "do not replay configured prices; ticks come only from POST /api/ticks")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfigPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(serveConfigPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	interval, err := cfg.Server.TickDuration()
	if err != nil {
		return fmt.Errorf("server.tick_interval: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	opts := []sim.Option{sim.WithLogger(logger), sim.WithJournal(j)}
	var eng *sim.Engine
	if serveRestore != "" {
		st, err := sim.LoadState(serveRestore)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if eng, err = sim.Restore(cfg.Engine, st, opts...); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		logger.Info("engine restored", zap.String("path", serveRestore), zap.Int("positions", len(eng.Positions())))
	} else {
		eng = sim.NewEngine(cfg.Engine, cfg.Account.MarginBalance, cfg.Settings, opts...)
		if err := seedPositions(eng, cfg.Simulation.Positions, logger); err != nil {
			eng.Close()
			return err
		}
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := stream.NewHub(eng.Snapshot, logger)
	eng.SetListener(hub)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.Dependencies{
			Engine: eng,
			Stream: http.HandlerFunc(hub.ServeWS),
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !serveNoReplay {
		go replay(ctx, cfg, eng, interval, logger)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()
	fmt.Printf("✓ Serving on %s (api: /api, stream: /ws, metrics: /metrics)\n", srv.Addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	if serveSave != "" {
		if err := sim.SaveState(serveSave, eng.Export()); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		fmt.Printf("✓ State saved to %s\n", serveSave)
	}
	return nil
}

// replay plays the configured prices in real time while the server runs.
func replay(ctx context.Context, cfg *config.Config, eng *sim.Engine, interval time.Duration, logger *zap.Logger) {
	if cfg.Simulation.PricesCSV == "" && len(cfg.Simulation.PriceSteps) == 0 {
		return
	}
	src, err := openFeed(cfg.Simulation, time.Now().UTC())
	if err != nil {
		logger.Error("replay feed", zap.Error(err))
		return
	}
	strat, err := strategies.FromConfig(cfg.Simulation)
	if err != nil {
		src.Close()
		logger.Error("replay strategy", zap.Error(err))
		return
	}

	r := &backtest.Runner{
		Engine:   eng,
		Feed:     src,
		Strategy: strat,
		Options:  backtest.RunnerOptions{Play: feed.PlayOptions{Pace: true, Interval: interval}},
	}
	res, err := r.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("replay stopped", zap.Error(err), zap.Int("frames", res.Frames))
		return
	}
	logger.Info("replay finished",
		zap.Int("frames", res.Frames),
		zap.Int("updates", res.Updates),
		zap.Float64("margin_balance", res.Account.MarginBalance),
	)
}
