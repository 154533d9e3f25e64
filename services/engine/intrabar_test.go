package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroRangeCandleYieldsSingleTick(t *testing.T) {
	gen := PathGenerator{Policy: PathHeuristic, Subticks: 5}
	ticks, magnified := gen.BuildPath(Candle{Timestamp: 1000, Open: 42, High: 42, Low: 42, Close: 42}, nil)

	require.Len(t, ticks, 1)
	assert.Equal(t, 42.0, ticks[0].Price)
	assert.Equal(t, int64(1000), ticks[0].Timestamp)
	assert.True(t, ticks[0].Synthetic)
	assert.False(t, magnified)
}

func TestHeuristicPathShape(t *testing.T) {
	gen := PathGenerator{Policy: PathHeuristic}
	bar := Candle{Timestamp: 0, Open: 100, High: 112, Low: 90, Close: 105}

	ticks, _ := gen.BuildPath(bar, nil)
	require.Len(t, ticks, 4)

	// |O-L| = 10 < |O-H| = 12, so the low is assumed reached first.
	assert.Equal(t, []float64{100, 90, 112, 105}, prices(ticks))

	// starts at open, ends at close, visits each extreme exactly once
	assert.Equal(t, bar.Open, ticks[0].Price)
	assert.Equal(t, bar.Close, ticks[len(ticks)-1].Price)
	assert.Equal(t, 1, countPrice(ticks, bar.High))
	assert.Equal(t, 1, countPrice(ticks, bar.Low))
}

func TestHeuristicPrefersNearerHigh(t *testing.T) {
	gen := PathGenerator{Policy: PathHeuristic}
	bar := Candle{Open: 100, High: 103, Low: 90, Close: 95}

	ticks, _ := gen.BuildPath(bar, nil)
	assert.Equal(t, []float64{100, 103, 90, 95}, prices(ticks))
}

func TestExplicitPolicies(t *testing.T) {
	bar := Candle{Open: 100, High: 112, Low: 90, Close: 105}

	ohlc, _ := PathGenerator{Policy: PathOpenHighLowClose}.BuildPath(bar, nil)
	assert.Equal(t, []float64{100, 112, 90, 105}, prices(ohlc))

	olhc, _ := PathGenerator{Policy: PathOpenLowHighClose}.BuildPath(bar, nil)
	assert.Equal(t, []float64{100, 90, 112, 105}, prices(olhc))
}

func TestSubticksPreserveAnchorsExactly(t *testing.T) {
	gen := PathGenerator{Policy: PathOpenHighLowClose, Subticks: 3}
	bar := Candle{Open: 100, High: 112, Low: 90, Close: 105}

	ticks, _ := gen.BuildPath(bar, nil)
	require.Len(t, ticks, 4+3*3)

	for i, want := range []float64{100, 112, 90, 105} {
		assert.Equal(t, want, ticks[i*4].Price, "anchor %d", i)
	}
	// interpolated points lie strictly between their anchors
	assert.Equal(t, 103.0, ticks[1].Price)
	assert.Equal(t, 106.0, ticks[2].Price)
	assert.Equal(t, 109.0, ticks[3].Price)
}

func TestTickTimestampsStrictlyIncreaseWithinBar(t *testing.T) {
	gen := PathGenerator{Policy: PathHeuristic, Subticks: 2}
	ticks, _ := gen.BuildPath(Candle{Timestamp: 5_000, Open: 1, High: 3, Low: 0.5, Close: 2}, nil)

	for i := 1; i < len(ticks); i++ {
		assert.Greater(t, ticks[i].Timestamp, ticks[i-1].Timestamp)
	}
}

func TestMagnifierExpandsFinerCandles(t *testing.T) {
	gen := PathGenerator{Policy: PathOpenLowHighClose}
	bar := Candle{Timestamp: 0, Open: 100, High: 110, Low: 95, Close: 108}
	finer := []Candle{
		{Timestamp: 0, Open: 100, High: 104, Low: 95, Close: 103},
		{Timestamp: 60_000, Open: 103, High: 110, Low: 102, Close: 108},
	}

	ticks, magnified := gen.BuildPath(bar, finer)
	require.True(t, magnified)
	require.Len(t, ticks, 8)
	assert.Equal(t, []float64{100, 95, 104, 103, 103, 102, 110, 108}, prices(ticks))
}

func TestMagnifierCutoffFailsClosedIntoDegradedPath(t *testing.T) {
	gen := PathGenerator{Policy: PathOpenLowHighClose, MagnifierCutoff: 2}
	bar := Candle{Timestamp: 0, Open: 100, High: 110, Low: 95, Close: 108}
	finer := []Candle{
		{Timestamp: 0, Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: 1, Open: 100, High: 102, Low: 99, Close: 101},
		{Timestamp: 2, Open: 101, High: 110, Low: 95, Close: 108},
	}

	ticks, magnified := gen.BuildPath(bar, finer)
	assert.False(t, magnified)
	assert.Equal(t, []float64{100, 95, 110, 108}, prices(ticks))
}

func prices(ticks []Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, tk := range ticks {
		out[i] = tk.Price
	}
	return out
}

func countPrice(ticks []Tick, p float64) int {
	n := 0
	for _, tk := range ticks {
		if tk.Price == p {
			n++
		}
	}
	return n
}
