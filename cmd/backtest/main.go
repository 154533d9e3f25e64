// Command backtest runs the sub-bar execution simulator from a YAML run
// configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backsim/services/candleio"
	"backsim/services/config"
	"backsim/services/engine"
	"backsim/services/runner"
	"backsim/strategies"
)

var (
	configPath string
	outPath    string
	fallback   bool
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Sub-bar execution simulator",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation from a YAML config",
		RunE:  runBacktest,
	}
	run.Flags().StringVar(&configPath, "config", "", "path to the run config YAML")
	run.Flags().StringVar(&outPath, "out", "", "write the full result as JSON to this file")
	run.Flags().BoolVar(&fallback, "fallback", true, "fall back to the reference engine on a capability gap")
	run.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")
	_ = run.MarkFlagRequired("config")

	convert := &cobra.Command{
		Use:   "convert <in.csv> <out.arrow>",
		Short: "Convert a candle CSV into the Arrow cache format",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}

	engines := &cobra.Command{
		Use:   "engines",
		Short: "List registered engine variants",
		Run: func(*cobra.Command, []string) {
			for _, name := range engine.Engines() {
				fmt.Println(name)
			}
		},
	}

	strats := &cobra.Command{
		Use:   "strategies",
		Short: "List registered strategies",
		Run: func(*cobra.Command, []string) {
			for _, name := range strategies.Names() {
				fmt.Println(name)
			}
		},
	}

	root.AddCommand(run, convert, engines, strats)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	source, err := loadSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	strat, err := strategies.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return err
	}

	r := runner.Runner{
		EngineName:          cfg.Engine,
		FallbackToReference: fallback,
		Log:                 logger,
	}
	res, err := r.Run(ctx, engine.Job{
		Config:   cfg.Run,
		Source:   source,
		Strategy: strat,
		Logger:   logger,
	})
	if err != nil {
		// a data error still produced a usable prefix; report it before failing
		if res != nil {
			logger.Warn("partial result",
				zap.Int("bars_processed", res.BarsProcessed),
				zap.Int("trades", len(res.Trades)),
			)
			writeResult(res, logger)
		}
		return err
	}

	manifest := engine.NewManifest(res.RunID, res.Engine, cfg.Run)
	logger.Info("backtest finished",
		zap.String("run_id", res.RunID),
		zap.String("engine", res.Engine),
		zap.String("config_hash", manifest.ConfigHash),
		zap.Int("bars", res.BarsProcessed),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.FinalEquity),
		zap.Bool("microstructure_risk", res.Diagnostics.MicrostructureRisk),
		zap.Int("declined_orders", res.Diagnostics.DeclinedOrders),
	)
	writeResult(res, logger)
	return nil
}

func writeResult(res *engine.Result, logger *zap.Logger) {
	if outPath == "" {
		return
	}
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		logger.Error("encode result", zap.Error(err))
		return
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		logger.Error("write result", zap.Error(err))
		return
	}
	logger.Info("result written", zap.String("path", outPath))
}

func loadSource(ctx context.Context, cfg *config.File, logger *zap.Logger) (engine.BarSource, error) {
	base, err := loadCandles(ctx, cfg, cfg.Data.Source, cfg.Data.Path, cfg.Data.Timeframe, logger)
	if err != nil {
		return nil, err
	}

	step, err := candleio.TimeframeMillis(cfg.Data.Timeframe)
	if err != nil {
		return nil, err
	}
	gaps, gapErr := candleio.ValidateGaps(base, step, cfg.Run.MaxGapBars)
	if len(gaps) > 0 {
		logger.Warn("gaps in candle data", zap.Int("count", len(gaps)),
			zap.Int64("first_after", gaps[0].AfterTimestamp))
	}
	if gapErr != nil {
		return nil, gapErr
	}

	set, err := candleio.NewCandleSet(base, cfg.Data.Timeframe)
	if err != nil {
		return nil, err
	}
	if cfg.Data.FinerPath == "" {
		return set, nil
	}

	finer, err := loadCandles(ctx, cfg, cfg.Data.Source, cfg.Data.FinerPath, cfg.Data.FinerTimeframe, logger)
	if err != nil {
		return nil, err
	}
	return set.WithFiner(finer, cfg.Data.FinerTimeframe)
}

func loadCandles(ctx context.Context, cfg *config.File, source, path, interval string, logger *zap.Logger) ([]engine.Candle, error) {
	switch source {
	case "csv":
		return candleio.ReadCSV(path)
	case "arrow":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return candleio.ReadArrow(f)
	case "clickhouse":
		loader, err := candleio.NewClickHouseLoader(ctx, cfg.Data.ClickHouse, logger)
		if err != nil {
			return nil, err
		}
		defer loader.Close()
		return loader.Load(ctx, cfg.Data.Symbol, interval, cfg.Data.From, cfg.Data.To)
	}
	return nil, &engine.ConfigError{Field: "data.source", Reason: "unknown source " + source}
}

func runConvert(_ *cobra.Command, args []string) error {
	candles, err := candleio.ReadCSV(args[0])
	if err != nil {
		return err
	}
	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()
	if err := candleio.WriteArrow(out, candles); err != nil {
		return err
	}
	fmt.Printf("wrote %d candles to %s\n", len(candles), args[1])
	return nil
}
