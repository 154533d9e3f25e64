package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// RunConfig is the full configuration of one simulation run.
type RunConfig struct {
	InitialCapital    float64        `json:"initial_capital" yaml:"initial_capital"`
	Leverage          float64        `json:"leverage" yaml:"leverage"`
	CommissionRate    float64        `json:"commission_rate" yaml:"commission_rate"`
	Slippage          SlippageConfig `json:"slippage" yaml:"slippage"`
	PathPolicy        PathPolicy     `json:"path_policy" yaml:"path_policy"`
	Subticks          int            `json:"subticks" yaml:"subticks"`
	StopLossFirst     bool           `json:"sl_priority" yaml:"sl_priority"`
	MarginMode        MarginMode     `json:"margin_mode" yaml:"margin_mode"`
	MaintenanceMargin float64        `json:"maintenance_margin" yaml:"maintenance_margin"`
	MaxEntries        int            `json:"max_entries" yaml:"max_entries"` // pyramiding limit
	MagnifierCutoff   int            `json:"magnifier_cutoff" yaml:"magnifier_cutoff"`
	OrderSize         float64        `json:"order_size" yaml:"order_size"` // default entry size in units

	// BarIntervalMs is the expected bar step. 0 disables gap checking; the
	// CLI fills it from the data timeframe.
	BarIntervalMs int64 `json:"bar_interval_ms" yaml:"bar_interval_ms"`
	// MaxGapBars is how many consecutive missing bars a stream may carry
	// before the gap becomes a fatal data error.
	MaxGapBars int `json:"max_gap_bars" yaml:"max_gap_bars"`
}

// WithDefaults fills unset fields so a zero-value config only needs capital.
func (c RunConfig) WithDefaults() RunConfig {
	if c.Leverage == 0 {
		c.Leverage = 1
	}
	if c.PathPolicy == "" {
		c.PathPolicy = PathHeuristic
	}
	if c.MarginMode == "" {
		c.MarginMode = MarginIsolated
	}
	if c.MaintenanceMargin == 0 {
		c.MaintenanceMargin = 0.005
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 1
	}
	if c.MagnifierCutoff == 0 {
		c.MagnifierCutoff = DefaultMagnifierCutoff
	}
	if c.OrderSize == 0 {
		c.OrderSize = 1
	}
	return c
}

// Validate rejects contradictory configuration before the run starts.
func (c RunConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return &ConfigError{Field: "initial_capital", Reason: "must be positive"}
	}
	if c.Leverage < 1 {
		return &ConfigError{Field: "leverage", Reason: "must be >= 1"}
	}
	if c.CommissionRate < 0 {
		return &ConfigError{Field: "commission_rate", Reason: "must not be negative"}
	}
	if !c.PathPolicy.Valid() {
		return &ConfigError{Field: "path_policy", Reason: fmt.Sprintf("unknown policy %q", c.PathPolicy)}
	}
	if c.Subticks < 0 {
		return &ConfigError{Field: "subticks", Reason: "must not be negative"}
	}
	if !c.MarginMode.Valid() {
		return &ConfigError{Field: "margin_mode", Reason: fmt.Sprintf("unknown mode %q", c.MarginMode)}
	}
	if c.MaintenanceMargin <= 0 || c.MaintenanceMargin >= 1 {
		return &ConfigError{Field: "maintenance_margin", Reason: "must be in (0, 1)"}
	}
	if c.MaintenanceMargin >= 1/c.Leverage {
		return &ConfigError{Field: "maintenance_margin", Reason: "must be below the initial margin 1/leverage"}
	}
	if c.MaxEntries < 1 {
		return &ConfigError{Field: "max_entries", Reason: "must be >= 1"}
	}
	if c.OrderSize <= 0 {
		return &ConfigError{Field: "order_size", Reason: "must be positive"}
	}
	if c.BarIntervalMs < 0 {
		return &ConfigError{Field: "bar_interval_ms", Reason: "must not be negative"}
	}
	if c.MaxGapBars < 0 {
		return &ConfigError{Field: "max_gap_bars", Reason: "must not be negative"}
	}
	if _, err := c.Slippage.build(); err != nil {
		return err
	}
	return nil
}

// Manifest identifies a run for reproducibility: the same config hash plus
// the same inputs must reproduce the same result byte for byte.
type Manifest struct {
	RunID         string `json:"run_id"`
	Engine        string `json:"engine"`
	ConfigHash    string `json:"config_hash"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

// EngineVersion is bumped whenever a change may alter numeric output.
const EngineVersion = "1.0.0"

// NewManifest hashes the canonical JSON encoding of cfg.
func NewManifest(runID, engineName string, cfg RunConfig) Manifest {
	raw, _ := json.Marshal(cfg)
	return Manifest{
		RunID:         runID,
		Engine:        engineName,
		ConfigHash:    fmt.Sprintf("%x", sha256.Sum256(raw)),
		EngineVersion: EngineVersion,
		CreatedAt:     time.Now().UnixMilli(),
	}
}
