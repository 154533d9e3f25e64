// Command parity_checker runs the golden conformance suite against every
// registered engine variant and fails when any of them drifts from the
// reference engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"backsim/services/engine"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "parity_checker",
		Short: "Verify engine variants against the reference engine",
		RunE: func(*cobra.Command, []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return check(logger)
		},
	}
	root.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func check(logger *zap.Logger) error {
	cases := len(engine.ConformanceCases())
	failed := 0

	for _, name := range engine.Engines() {
		if name == engine.ReferenceEngineName {
			continue
		}
		eng, err := engine.Select(name, engine.Job{})
		if err != nil {
			return err
		}

		failures := engine.RunConformance(eng)
		if len(failures) == 0 {
			logger.Info("engine conforms",
				zap.String("engine", name),
				zap.Int("cases", cases),
				zap.Float64("tolerance", engine.ParityTolerance),
			)
			continue
		}
		failed += len(failures)
		for _, f := range failures {
			logger.Error("parity failure", zap.String("engine", name), zap.String("case", f))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d parity failures", failed)
	}
	return nil
}
