package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReferenceEngine is the canonical sequential implementation: one bar at a
// time, one tick at a time. Every other variant is verified against it.
type ReferenceEngine struct{}

func init() {
	Register(ReferenceEngine{})
	Register(BatchEngine{})
}

func (ReferenceEngine) Name() string { return ReferenceEngineName }

func (ReferenceEngine) Capabilities() Capabilities {
	return Capabilities{Magnifier: true, Subticks: true, TrailingStop: true, Pyramiding: true}
}

func (e ReferenceEngine) Run(job Job) (*Result, error) {
	cfg, err := validateJob(job)
	if err != nil {
		return nil, err
	}
	logger := job.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.New().String()
	logger.Info("run starting",
		zap.String("run_id", runID),
		zap.String("engine", e.Name()),
		zap.Int("bars", job.Source.Len()),
		zap.String("path_policy", string(cfg.PathPolicy)),
	)

	loop := NewLoop(cfg, job.Source, job.Strategy, logger)
	res, err := loop.Run()
	res.RunID = runID
	res.Engine = e.Name()
	if err != nil {
		logger.Warn("run aborted", zap.String("run_id", runID), zap.Error(err), zap.Int("bars_processed", res.BarsProcessed))
		return res, err
	}
	logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.FinalEquity),
		zap.Int("declined_orders", res.Diagnostics.DeclinedOrders),
	)
	return res, nil
}
