package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCarriesBothVariants(t *testing.T) {
	assert.Equal(t, []string{"batch", ReferenceEngineName}, Engines())
}

func TestBatchEngineMatchesReferenceOnGoldenSuite(t *testing.T) {
	failures := RunConformance(BatchEngine{})
	for _, f := range failures {
		t.Error(f)
	}
}

func TestBatchEngineMatchesReferenceWithSubticks(t *testing.T) {
	for _, tc := range ConformanceCases() {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			tc.Config.Subticks = 4
			job := tc.job()

			want, werr := ReferenceEngine{}.Run(job)
			got, gerr := BatchEngine{}.Run(job)
			require.NoError(t, werr)
			require.NoError(t, gerr)
			require.NoError(t, CompareResults(want, got, ParityTolerance))
		})
	}
}

func TestPartialResultsAgreeOnDataError(t *testing.T) {
	job := Job{
		Config: RunConfig{
			InitialCapital: 10_000,
			Leverage:       10,
			CommissionRate: 0.001,
			PathPolicy:     PathHeuristic,
			StopLossFirst:  true,
			OrderSize:      1,
		},
		Source: SliceBars{
			Candles: []Candle{
				{Timestamp: hourlyTs(0), Open: 100, High: 101, Low: 99, Close: 100},
				{Timestamp: hourlyTs(1), Open: 100, High: 104, Low: 99, Close: 103},
				{Timestamp: hourlyTs(2), Open: 120, High: 101, Low: 99, Close: 100}, // open above high
			},
			Timeframe: "1h",
		},
		Strategy: ScriptedSignals{Intents: map[int]SignalIntent{
			0: {EnterLong: true},
			1: {ExitLong: true},
		}},
	}

	want, werr := ReferenceEngine{}.Run(job)
	got, gerr := BatchEngine{}.Run(job)

	var wd, gd *DataError
	require.ErrorAs(t, werr, &wd)
	require.ErrorAs(t, gerr, &gd)
	assert.Equal(t, wd.BarIndex, gd.BarIndex)

	assert.Equal(t, 2, want.BarsProcessed)
	assert.Equal(t, want.BarsProcessed, got.BarsProcessed)
	require.NoError(t, CompareResults(want, got, ParityTolerance))
}

func TestEnginesAgreeOnGapAbort(t *testing.T) {
	job := Job{
		Config: RunConfig{
			InitialCapital: 10_000,
			BarIntervalMs:  3_600_000,
			MaxGapBars:     1,
		},
		Source: SliceBars{
			Candles: []Candle{
				{Timestamp: hourlyTs(0), Open: 100, High: 101, Low: 99, Close: 100},
				{Timestamp: hourlyTs(1), Open: 100, High: 104, Low: 99, Close: 103},
				{Timestamp: hourlyTs(5), Open: 103, High: 105, Low: 102, Close: 104}, // three bars missing
			},
			Timeframe: "1h",
		},
		Strategy: ScriptedSignals{Intents: map[int]SignalIntent{
			0: {EnterLong: true},
			1: {ExitLong: true},
		}},
	}

	want, werr := ReferenceEngine{}.Run(job)
	got, gerr := BatchEngine{}.Run(job)

	var wd, gd *DataError
	require.ErrorAs(t, werr, &wd)
	require.ErrorAs(t, gerr, &gd)
	assert.Equal(t, 2, wd.BarIndex)
	assert.Equal(t, wd.BarIndex, gd.BarIndex)

	assert.Equal(t, 2, want.BarsProcessed)
	require.NoError(t, CompareResults(want, got, ParityTolerance))
}

func TestSelectRefusesCapabilityGap(t *testing.T) {
	job := Job{
		Config: RunConfig{InitialCapital: 1000},
		Source: finerBars{
			bars:  []Candle{{Timestamp: hourlyTs(0), Open: 1, High: 2, Low: 0.5, Close: 1.5}},
			finer: [][]Candle{nil},
		},
		Strategy: ScriptedSignals{},
	}

	_, err := Select("batch", job)
	var cerr *EngineCapabilityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "batch", cerr.Engine)
	assert.NotEmpty(t, cerr.Capability)

	// the fallback is explicit: the same job runs on the reference engine
	ref, err := Select(ReferenceEngineName, job)
	require.NoError(t, err)
	assert.Equal(t, ReferenceEngineName, ref.Name())
}

func TestBatchRunRefusesUnsupportedJobDirectly(t *testing.T) {
	// bypassing Select must not silently degrade the simulation
	job := Job{
		Config: RunConfig{InitialCapital: 1000},
		Source: finerBars{
			bars:  []Candle{{Timestamp: hourlyTs(0), Open: 1, High: 2, Low: 0.5, Close: 1.5}},
			finer: [][]Candle{nil},
		},
		Strategy: ScriptedSignals{},
	}
	_, err := BatchEngine{}.Run(job)
	var cerr *EngineCapabilityError
	require.ErrorAs(t, err, &cerr)
}

func TestSelectUnknownEngine(t *testing.T) {
	_, err := Select("gpu", Job{})
	require.Error(t, err)
}

func TestCompareResultsDetectsDrift(t *testing.T) {
	tc := ConformanceCases()[0]
	ref, err := ReferenceEngine{}.Run(tc.job())
	require.NoError(t, err)
	require.NotEmpty(t, ref.Trades)

	drifted, err := ReferenceEngine{}.Run(tc.job())
	require.NoError(t, err)
	require.NoError(t, CompareResults(ref, drifted, ParityTolerance))

	drifted.Trades[0].ExitPrice *= 1 + 1e-6
	assert.Error(t, CompareResults(ref, drifted, ParityTolerance))
}
