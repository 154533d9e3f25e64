// Package strategies holds the built-in signal providers and the registry
// the CLI resolves strategy names through. Strategies are deliberately dumb:
// they emit declarative intents and never touch simulator state.
package strategies

import (
	"fmt"
	"sort"

	"backsim/services/engine"
)

// Strategy is a named signal provider.
type Strategy interface {
	Name() string
	engine.SignalProvider
}

// Params carries strategy tuning values by name. Missing keys fall back to
// the strategy's defaults.
type Params map[string]float64

func (p Params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Factory builds a fresh strategy instance. Strategies are stateful across
// bars, so every run gets its own instance.
type Factory func(p Params) (Strategy, error)

var factories = map[string]Factory{}

// Register adds a strategy factory. Called from init.
func Register(name string, f Factory) {
	factories[name] = f
}

// Names lists the registered strategies, sorted.
func Names() []string {
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New resolves a strategy by name.
func New(name string, p Params) (Strategy, error) {
	f, ok := factories[name]
	if !ok {
		return nil, &engine.ConfigError{
			Field:  "strategy",
			Reason: fmt.Sprintf("unknown strategy %q (registered: %v)", name, Names()),
		}
	}
	return f(p)
}
