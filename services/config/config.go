// Package config loads and validates the YAML run configuration consumed by
// the backtest CLI.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"backsim/services/candleio"
	"backsim/services/engine"
)

// DataConfig names the candle source of a run.
type DataConfig struct {
	// Source is "csv", "arrow" or "clickhouse".
	Source string `yaml:"source"`
	Path   string `yaml:"path"` // csv/arrow file path

	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
	From      int64  `yaml:"from"` // ms since epoch, clickhouse only
	To        int64  `yaml:"to"`

	// Finer-timeframe candles for intrabar magnification, optional.
	FinerPath      string `yaml:"finer_path"`
	FinerTimeframe string `yaml:"finer_timeframe"`

	ClickHouse candleio.ClickHouseConfig `yaml:"clickhouse"`
}

// StrategyConfig selects a registered strategy and its tuning values.
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// File is the full YAML run configuration.
type File struct {
	Engine   string           `yaml:"engine"`
	Run      engine.RunConfig `yaml:"run"`
	Data     DataConfig       `yaml:"data"`
	Strategy StrategyConfig   `yaml:"strategy"`
}

// Load reads, defaults and validates a run configuration. Unknown YAML keys
// are rejected so typos surface before the run, not as silently-defaulted
// behavior.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw YAML.
func Parse(raw []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, &engine.ConfigError{Field: "yaml", Reason: err.Error()}
	}

	if f.Engine == "" {
		f.Engine = engine.ReferenceEngineName
	}
	f.Run = f.Run.WithDefaults()
	if err := f.Run.Validate(); err != nil {
		return nil, err
	}
	if err := f.validateData(); err != nil {
		return nil, err
	}
	if f.Run.BarIntervalMs == 0 {
		// already validated by validateData
		step, _ := candleio.TimeframeMillis(f.Data.Timeframe)
		f.Run.BarIntervalMs = step
	}
	if f.Strategy.Name == "" {
		return nil, &engine.ConfigError{Field: "strategy.name", Reason: "strategy is required"}
	}
	return &f, nil
}

func (f *File) validateData() error {
	switch f.Data.Source {
	case "csv", "arrow":
		if f.Data.Path == "" {
			return &engine.ConfigError{Field: "data.path", Reason: "file path is required"}
		}
	case "clickhouse":
		if f.Data.ClickHouse.Addr == "" {
			return &engine.ConfigError{Field: "data.clickhouse.addr", Reason: "address is required"}
		}
		if f.Data.Symbol == "" {
			return &engine.ConfigError{Field: "data.symbol", Reason: "symbol is required"}
		}
		if f.Data.To <= f.Data.From {
			return &engine.ConfigError{Field: "data.to", Reason: "must be after data.from"}
		}
	case "":
		return &engine.ConfigError{Field: "data.source", Reason: "data source is required"}
	default:
		return &engine.ConfigError{Field: "data.source", Reason: fmt.Sprintf("unknown source %q", f.Data.Source)}
	}
	if f.Data.Timeframe == "" {
		return &engine.ConfigError{Field: "data.timeframe", Reason: "timeframe is required"}
	}
	if _, err := candleio.TimeframeMillis(f.Data.Timeframe); err != nil {
		return err
	}
	if f.Data.FinerPath != "" {
		if f.Data.FinerTimeframe == "" {
			return &engine.ConfigError{Field: "data.finer_timeframe", Reason: "required with finer_path"}
		}
		if _, err := candleio.TimeframeMillis(f.Data.FinerTimeframe); err != nil {
			return err
		}
	}
	return nil
}
