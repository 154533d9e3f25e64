package engine

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Job is one complete simulation request: configuration, the read-only data
// handle, and the strategy boundary.
type Job struct {
	Config   RunConfig
	Source   BarSource
	Strategy SignalProvider
	Logger   *zap.Logger
}

// Capabilities declares what an engine variant implements. Selection is
// negotiated against the job; an engine must never silently approximate a
// feature it lacks.
type Capabilities struct {
	Magnifier    bool // finer-timeframe intrabar data
	Subticks     bool
	TrailingStop bool
	Pyramiding   bool
}

// gapFor returns the first capability the job needs that the engine lacks.
func (c Capabilities) gapFor(job Job) string {
	if !c.Magnifier && job.Source != nil && job.Source.HasFiner() {
		return "finer-timeframe intrabar data (bar magnifier)"
	}
	if !c.Subticks && job.Config.Subticks > 0 {
		return "subtick interpolation"
	}
	if !c.Pyramiding && job.Config.MaxEntries > 1 {
		return "pyramiding"
	}
	return ""
}

// Engine is the simulation contract every variant implements. All variants
// must produce numerically identical output for the configurations they
// declare support for.
type Engine interface {
	Name() string
	Capabilities() Capabilities
	Run(job Job) (*Result, error)
}

// ReferenceEngineName is the canonical sequential implementation every
// other variant is verified against.
const ReferenceEngineName = "reference"

var (
	registryMu sync.RWMutex
	registry   = map[string]Engine{}
)

// Register adds an engine variant. Variants register from init so engine
// selection sees a stable set.
func Register(e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name()] = e
}

// Engines lists the registered variant names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select negotiates an engine for the job. A capability gap yields an
// EngineCapabilityError; the caller must then fall back to the reference
// engine explicitly rather than accept an approximation.
func Select(name string, job Job) (Engine, error) {
	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (registered: %v)", name, Engines())
	}
	if gap := e.Capabilities().gapFor(job); gap != "" {
		return nil, &EngineCapabilityError{Engine: name, Capability: gap}
	}
	return e, nil
}

func validateJob(job Job) (RunConfig, error) {
	cfg := job.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if job.Source == nil {
		return cfg, &ConfigError{Field: "source", Reason: "candle source is required"}
	}
	if job.Strategy == nil {
		return cfg, &ConfigError{Field: "strategy", Reason: "signal provider is required"}
	}
	return cfg, nil
}
