package engine

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchEngine is the throughput variant: it validates the whole candle
// stream in one columnar pass and precomputes every bar's tick path into a
// single flat buffer before matching. Matching itself goes through the same
// broker pipeline as the reference engine, so supported configurations
// agree with it bit for bit.
//
// Capability gap: the batch engine has no magnifier input, so jobs carrying
// finer-timeframe data must be run on the reference engine.
type BatchEngine struct{}

func (BatchEngine) Name() string { return "batch" }

func (BatchEngine) Capabilities() Capabilities {
	return Capabilities{Magnifier: false, Subticks: true, TrailingStop: true, Pyramiding: true}
}

// columns is the columnar view of a candle stream.
type columns struct {
	ts                     []int64
	open, high, low, close []float64
	volume                 []float64
}

func extractColumns(src BarSource) columns {
	n := src.Len()
	c := columns{
		ts:     make([]int64, n),
		open:   make([]float64, n),
		high:   make([]float64, n),
		low:    make([]float64, n),
		close:  make([]float64, n),
		volume: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		bar := src.Bar(i)
		c.ts[i] = bar.Timestamp
		c.open[i] = bar.Open
		c.high[i] = bar.High
		c.low[i] = bar.Low
		c.close[i] = bar.Close
		c.volume[i] = bar.Volume
	}
	return c
}

func (c columns) bar(i int) Candle {
	return Candle{
		Timestamp: c.ts[i],
		Open:      c.open[i],
		High:      c.high[i],
		Low:       c.low[i],
		Close:     c.close[i],
		Volume:    c.volume[i],
	}
}

// firstInvalid scans the columns for the first OHLC, monotonicity or
// oversized-gap violation. Returns len and nil when the stream is clean.
func (c columns) firstInvalid(intervalMs int64, maxGapBars int) (int, error) {
	n := len(c.ts)
	for i := 0; i < n; i++ {
		if err := c.bar(i).Validate(); err != nil {
			if de, ok := err.(*DataError); ok {
				de.BarIndex = i
			}
			return i, err
		}
		if i > 0 && c.ts[i] <= c.ts[i-1] {
			return i, &DataError{Reason: "non-monotonic timestamp", Timestamp: c.ts[i], BarIndex: i}
		}
		if i > 0 && intervalMs > 0 {
			if missing := int((c.ts[i]-c.ts[i-1])/intervalMs) - 1; missing > maxGapBars {
				return i, &DataError{
					Reason:    fmt.Sprintf("gap of %d missing bars exceeds tolerance %d", missing, maxGapBars),
					Timestamp: c.ts[i],
					BarIndex:  i,
				}
			}
		}
	}
	return n, nil
}

func (e BatchEngine) Run(job Job) (*Result, error) {
	cfg, err := validateJob(job)
	if err != nil {
		return nil, err
	}
	// Run refuses what Select would have refused: no silent degradation
	// even when a caller bypasses negotiation.
	if gap := e.Capabilities().gapFor(job); gap != "" {
		return nil, &EngineCapabilityError{Engine: e.Name(), Capability: gap}
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
	)

	cols := extractColumns(job.Source)
	prefix, dataErr := cols.firstInvalid(cfg.BarIntervalMs, cfg.MaxGapBars)

	gen := PathGenerator{
		Policy:          cfg.PathPolicy,
		Subticks:        cfg.Subticks,
		MagnifierCutoff: cfg.MagnifierCutoff,
	}

	// Flattened tick buffer: one allocation for the whole run.
	total := 0
	for i := 0; i < prefix; i++ {
		total += gen.TicksPerCandle(cols.bar(i))
	}
	ticks := make([]Tick, 0, total)
	barEnd := make([]int, prefix)
	for i := 0; i < prefix; i++ {
		ticks = gen.appendExpand(ticks, cols.bar(i), cols.ts[i])
		barEnd[i] = len(ticks)
	}

	broker := NewBroker(cfg, logger)
	diag := Diagnostics{
		UsesSyntheticTicks: true,
		PathPolicy:         cfg.PathPolicy,
		DataGranularity:    job.Source.Granularity(),
		MicrostructureRisk: prefix > 0, // always the 4-point path: no magnifier input
	}

	history := make([]Candle, 0, prefix)
	start := 0
	bars := 0
	var lastTickTs int64
	for i := 0; i < prefix; i++ {
		bar := cols.bar(i)
		history = append(history, bar)
		intent := job.Strategy.OnBar(i, history)
		if serr := broker.SubmitIntent(intent); serr != nil {
			res := buildResult(broker, bars, diag)
			res.RunID, res.Engine = runID, e.Name()
			return res, serr
		}
		broker.BeginBar()
		for _, tk := range ticks[start:barEnd[i]] {
			if _, perr := broker.ProcessTick(tk); perr != nil {
				res := buildResult(broker, bars, diag)
				res.RunID, res.Engine = runID, e.Name()
				return res, perr
			}
		}
		lastTickTs = ticks[barEnd[i]-1].Timestamp
		broker.SettleBar(bar, lastTickTs)
		start = barEnd[i]
		bars++
	}

	if dataErr == nil && bars > 0 {
		broker.CloseAll(cols.close[bars-1], lastTickTs, ExitEndOfData)
	}

	res := buildResult(broker, bars, diag)
	res.RunID, res.Engine = runID, e.Name()
	if dataErr != nil {
		logger.Warn("run aborted", zap.String("run_id", runID), zap.Error(dataErr), zap.Int("bars_processed", bars))
		return res, dataErr
	}
	logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.FinalEquity),
	)
	return res, nil
}
