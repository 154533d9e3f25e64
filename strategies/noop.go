package strategies

import "backsim/services/engine"

// Noop never trades. Useful for data validation runs and as the smallest
// possible strategy example.
type Noop struct{}

func init() {
	Register("noop", func(Params) (Strategy, error) { return Noop{}, nil })
}

func (Noop) Name() string { return "noop" }

func (Noop) OnBar(int, []engine.Candle) engine.SignalIntent {
	return engine.SignalIntent{}
}
