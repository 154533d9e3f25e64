package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	valid := RunConfig{InitialCapital: 1000}.WithDefaults()
	require.NoError(t, valid.Validate())

	cases := []struct {
		name  string
		mut   func(*RunConfig)
		field string
	}{
		{"zero capital", func(c *RunConfig) { c.InitialCapital = 0 }, "initial_capital"},
		{"negative commission", func(c *RunConfig) { c.CommissionRate = -0.001 }, "commission_rate"},
		{"leverage below one", func(c *RunConfig) { c.Leverage = 0.5 }, "leverage"},
		{"unknown path policy", func(c *RunConfig) { c.PathPolicy = "zigzag" }, "path_policy"},
		{"negative subticks", func(c *RunConfig) { c.Subticks = -1 }, "subticks"},
		{"unknown margin mode", func(c *RunConfig) { c.MarginMode = "portfolio" }, "margin_mode"},
		{"maintenance margin out of range", func(c *RunConfig) { c.MaintenanceMargin = 1.5 }, "maintenance_margin"},
		{
			"maintenance margin above initial margin",
			func(c *RunConfig) { c.Leverage = 100; c.MaintenanceMargin = 0.02 },
			"maintenance_margin",
		},
		{"zero order size", func(c *RunConfig) { c.OrderSize = -2 }, "order_size"},
		{"negative bar interval", func(c *RunConfig) { c.BarIntervalMs = -1 }, "bar_interval_ms"},
		{"negative gap tolerance", func(c *RunConfig) { c.MaxGapBars = -1 }, "max_gap_bars"},
		{"unknown slippage model", func(c *RunConfig) { c.Slippage = SlippageConfig{Model: "random", Value: 1} }, "slippage.model"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mut(&cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := RunConfig{InitialCapital: 500}.WithDefaults()

	assert.Equal(t, 1.0, cfg.Leverage)
	assert.Equal(t, PathHeuristic, cfg.PathPolicy)
	assert.Equal(t, MarginIsolated, cfg.MarginMode)
	assert.Equal(t, 0.005, cfg.MaintenanceMargin)
	assert.Equal(t, 1, cfg.MaxEntries)
	assert.Equal(t, DefaultMagnifierCutoff, cfg.MagnifierCutoff)
	assert.Equal(t, 1.0, cfg.OrderSize)
	require.NoError(t, cfg.Validate())
}

func TestManifestHashTracksConfig(t *testing.T) {
	cfg := RunConfig{InitialCapital: 1000}.WithDefaults()
	a := NewManifest("r1", ReferenceEngineName, cfg)
	b := NewManifest("r2", "batch", cfg)
	assert.Equal(t, a.ConfigHash, b.ConfigHash, "hash depends only on the config")

	cfg.CommissionRate = 0.0004
	c := NewManifest("r3", ReferenceEngineName, cfg)
	assert.NotEqual(t, a.ConfigHash, c.ConfigHash)
	assert.Equal(t, EngineVersion, c.EngineVersion)
}
