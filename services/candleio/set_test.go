package candleio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

func hourly(i int, o, h, l, c float64) engine.Candle {
	return engine.Candle{
		Timestamp: int64(1_700_000_000_000 + i*3_600_000),
		Open:      o, High: h, Low: l, Close: c,
	}
}

func TestCandleSetRejectsDefectiveInput(t *testing.T) {
	_, err := NewCandleSet(nil, "1h")
	var derr *engine.DataError
	require.ErrorAs(t, err, &derr)

	bad := []engine.Candle{hourly(0, 100, 90, 95, 100)} // high below low
	_, err = NewCandleSet(bad, "1h")
	require.ErrorAs(t, err, &derr)

	dup := []engine.Candle{hourly(0, 100, 101, 99, 100), hourly(0, 100, 101, 99, 100)}
	_, err = NewCandleSet(dup, "1h")
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 1, derr.BarIndex)
}

func TestCandleSetFinerSpans(t *testing.T) {
	base := []engine.Candle{
		hourly(0, 100, 104, 99, 103),
		hourly(1, 103, 110, 102, 108),
	}
	minute := func(hour, min int, o, h, l, c float64) engine.Candle {
		return engine.Candle{
			Timestamp: int64(1_700_000_000_000 + hour*3_600_000 + min*60_000),
			Open:      o, High: h, Low: l, Close: c,
		}
	}
	finer := []engine.Candle{
		minute(0, 0, 100, 102, 99, 101),
		minute(0, 30, 101, 104, 100, 103),
		minute(1, 0, 103, 106, 102, 105),
		minute(1, 15, 105, 110, 104, 108),
	}

	set, err := NewCandleSet(base, "1h")
	require.NoError(t, err)
	set, err = set.WithFiner(finer, "1m")
	require.NoError(t, err)

	assert.True(t, set.HasFiner())
	assert.Equal(t, "1m", set.Granularity())
	assert.Len(t, set.Finer(0), 2)
	assert.Len(t, set.Finer(1), 2)
	assert.Equal(t, finer[2], set.Finer(1)[0])
}

func TestCandleSetRejectsUncoveredFiner(t *testing.T) {
	base := []engine.Candle{hourly(1, 100, 104, 99, 103)}
	stray := []engine.Candle{hourly(0, 100, 102, 99, 101)} // before the first base bar

	set, err := NewCandleSet(base, "1h")
	require.NoError(t, err)
	_, err = set.WithFiner(stray, "1h")
	var derr *engine.DataError
	require.ErrorAs(t, err, &derr)
}

func TestDetectGaps(t *testing.T) {
	candles := []engine.Candle{
		hourly(0, 100, 101, 99, 100),
		hourly(1, 100, 101, 99, 100),
		hourly(4, 100, 101, 99, 100), // two bars missing
	}
	gaps := DetectGaps(candles, 3_600_000)
	require.Len(t, gaps, 1)
	assert.Equal(t, candles[1].Timestamp, gaps[0].AfterTimestamp)
	assert.Equal(t, 2, gaps[0].MissingBars)

	assert.Empty(t, DetectGaps(candles[:2], 3_600_000))
}

func TestValidateGapsTolerance(t *testing.T) {
	candles := []engine.Candle{
		hourly(0, 100, 101, 99, 100),
		hourly(1, 100, 101, 99, 100),
		hourly(4, 100, 101, 99, 100), // two bars missing
	}

	gaps, err := ValidateGaps(candles, 3_600_000, 2)
	require.NoError(t, err)
	require.Len(t, gaps, 1, "tolerated gaps are still reported")

	gaps, err = ValidateGaps(candles, 3_600_000, 1)
	var derr *engine.DataError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, candles[1].Timestamp, derr.Timestamp)
	require.Len(t, gaps, 1)
}

func TestTimeframeMillis(t *testing.T) {
	cases := map[string]int64{
		"1s":  1_000,
		"1m":  60_000,
		"5m":  300_000,
		"1h":  3_600_000,
		"4h":  14_400_000,
		"1d":  86_400_000,
		"15m": 900_000,
	}
	for tf, want := range cases {
		got, err := TimeframeMillis(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}

	for _, tf := range []string{"", "m", "0m", "-5m", "5x", "h1"} {
		_, err := TimeframeMillis(tf)
		assert.Error(t, err, tf)
	}
}
