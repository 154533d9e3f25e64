package strategies

import "backsim/services/engine"

// OpenOnce enters a single long on the first bar with the configured
// protective levels and then goes quiet. It exists to exercise the exit
// machinery in isolation: whatever closes the position is the simulator's
// decision, not the strategy's.
type OpenOnce struct {
	StopPct  float64 // stop distance as a fraction of the entry bar's open
	TakePct  float64 // take-profit distance, same basis
	TrailPct float64 // trailing distance, same basis; 0 disables

	opened bool
}

func init() {
	Register("open-once", func(p Params) (Strategy, error) {
		return &OpenOnce{
			StopPct:  p.get("stop_pct", 0.02),
			TakePct:  p.get("take_pct", 0.04),
			TrailPct: p.get("trail_pct", 0),
		}, nil
	})
}

func (s *OpenOnce) Name() string { return "open-once" }

func (s *OpenOnce) OnBar(i int, history []engine.Candle) engine.SignalIntent {
	if s.opened {
		return engine.SignalIntent{}
	}
	s.opened = true

	ref := history[len(history)-1].Open
	sig := engine.SignalIntent{EnterLong: true}
	if s.StopPct > 0 {
		sig.StopLoss = ref * (1 - s.StopPct)
	}
	if s.TakePct > 0 {
		sig.TakeProfit = ref * (1 + s.TakePct)
	}
	if s.TrailPct > 0 {
		sig.TrailingStop = ref * s.TrailPct
	}
	return sig
}
