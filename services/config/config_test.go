package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

const sample = `
engine: batch
run:
  initial_capital: 25000
  leverage: 5
  commission_rate: 0.0004
  sl_priority: true
  path_policy: heuristic
  slippage:
    model: proportional
    value: 0.0001
data:
  source: csv
  path: ./candles.csv
  symbol: BTCUSDT
  timeframe: 1h
strategy:
  name: sma-cross
  params:
    fast: 10
    slow: 30
`

func TestParseValidConfig(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "batch", f.Engine)
	assert.Equal(t, 25_000.0, f.Run.InitialCapital)
	assert.Equal(t, 5.0, f.Run.Leverage)
	assert.True(t, f.Run.StopLossFirst)
	assert.Equal(t, engine.PathHeuristic, f.Run.PathPolicy)
	assert.Equal(t, "proportional", f.Run.Slippage.Model)

	// defaults applied
	assert.Equal(t, engine.MarginIsolated, f.Run.MarginMode)
	assert.Equal(t, 1, f.Run.MaxEntries)

	assert.Equal(t, "sma-cross", f.Strategy.Name)
	assert.Equal(t, 10.0, f.Strategy.Params["fast"])
}

func TestParseDefaultsEngineToReference(t *testing.T) {
	f, err := Parse([]byte(`
run:
  initial_capital: 1000
data:
  source: csv
  path: ./c.csv
  timeframe: 5m
strategy:
  name: noop
`))
	require.NoError(t, err)
	assert.Equal(t, engine.ReferenceEngineName, f.Engine)
}

func TestParseFillsBarIntervalFromTimeframe(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), f.Run.BarIntervalMs)
	assert.Equal(t, 0, f.Run.MaxGapBars, "any missing bar is fatal by default")

	f, err = Parse([]byte(`
run:
  initial_capital: 1000
  bar_interval_ms: 60000
  max_gap_bars: 3
data:
  source: csv
  path: ./c.csv
  timeframe: 5m
strategy:
  name: noop
`))
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), f.Run.BarIntervalMs, "explicit interval wins over the timeframe")
	assert.Equal(t, 3, f.Run.MaxGapBars)
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			"unknown key",
			"run:\n  initial_capital: 1000\n  comission_rate: 0.1\ndata:\n  source: csv\n  path: x\n  timeframe: 1h\nstrategy:\n  name: noop\n",
			"yaml",
		},
		{
			"missing capital",
			"data:\n  source: csv\n  path: x\n  timeframe: 1h\nstrategy:\n  name: noop\n",
			"initial_capital",
		},
		{
			"missing data source",
			"run:\n  initial_capital: 1000\nstrategy:\n  name: noop\n",
			"data.source",
		},
		{
			"csv without path",
			"run:\n  initial_capital: 1000\ndata:\n  source: csv\n  timeframe: 1h\nstrategy:\n  name: noop\n",
			"data.path",
		},
		{
			"clickhouse without addr",
			"run:\n  initial_capital: 1000\ndata:\n  source: clickhouse\n  symbol: BTCUSDT\n  timeframe: 1h\n  from: 1\n  to: 2\nstrategy:\n  name: noop\n",
			"data.clickhouse.addr",
		},
		{
			"bad timeframe",
			"run:\n  initial_capital: 1000\ndata:\n  source: csv\n  path: x\n  timeframe: 1q\nstrategy:\n  name: noop\n",
			"timeframe",
		},
		{
			"finer path without timeframe",
			"run:\n  initial_capital: 1000\ndata:\n  source: csv\n  path: x\n  timeframe: 1h\n  finer_path: y\nstrategy:\n  name: noop\n",
			"data.finer_timeframe",
		},
		{
			"missing strategy",
			"run:\n  initial_capital: 1000\ndata:\n  source: csv\n  path: x\n  timeframe: 1h\n",
			"strategy.name",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			var cerr *engine.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}
