package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

func candles() []engine.Candle {
	out := make([]engine.Candle, 0, 5)
	for i := 0; i < 5; i++ {
		base := 100.0 + float64(i)
		out = append(out, engine.Candle{
			Timestamp: int64(1_700_000_000_000 + i*3_600_000),
			Open:      base, High: base + 2, Low: base - 2, Close: base + 1,
		})
	}
	return out
}

func job(cfg engine.RunConfig) engine.Job {
	return engine.Job{
		Config:   cfg,
		Source:   engine.SliceBars{Candles: candles(), Timeframe: "1h"},
		Strategy: engine.ScriptedSignals{Intents: map[int]engine.SignalIntent{0: {EnterLong: true}}},
	}
}

type finerSource struct{ engine.SliceBars }

func (finerSource) HasFiner() bool { return true }

func TestRunSingleJob(t *testing.T) {
	r := Runner{}
	res, err := r.Run(context.Background(), job(engine.RunConfig{InitialCapital: 10_000}))
	require.NoError(t, err)
	assert.Equal(t, engine.ReferenceEngineName, res.Engine)
	assert.Equal(t, 5, res.BarsProcessed)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, engine.ExitEndOfData, res.Trades[0].ExitReason)
}

func TestRunFallsBackOnCapabilityGap(t *testing.T) {
	j := job(engine.RunConfig{InitialCapital: 10_000})
	j.Source = finerSource{engine.SliceBars{Candles: candles(), Timeframe: "1h"}}

	strict := Runner{EngineName: "batch"}
	_, err := strict.Run(context.Background(), j)
	var capErr *engine.EngineCapabilityError
	require.ErrorAs(t, err, &capErr)

	lenient := Runner{EngineName: "batch", FallbackToReference: true}
	res, err := lenient.Run(context.Background(), j)
	require.NoError(t, err)
	assert.Equal(t, engine.ReferenceEngineName, res.Engine)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Runner{}.Run(ctx, job(engine.RunConfig{InitialCapital: 10_000}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunAllSweepKeepsPerJobFailures(t *testing.T) {
	jobs := []engine.Job{
		job(engine.RunConfig{InitialCapital: 10_000}),
		job(engine.RunConfig{InitialCapital: -1}), // invalid config
		job(engine.RunConfig{InitialCapital: 10_000, Leverage: 5}),
	}

	results := Runner{EngineName: "batch", Workers: 2}.RunAll(context.Background(), jobs)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Result)

	var cerr *engine.ConfigError
	require.ErrorAs(t, results[1].Err, &cerr)
	assert.Equal(t, "initial_capital", cerr.Field)

	assert.NoError(t, results[2].Err)
	assert.Equal(t, 2, results[2].Index)
}
