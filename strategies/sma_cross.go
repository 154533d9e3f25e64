package strategies

import "backsim/services/engine"

// SMACross trades a fast/slow moving-average crossover. Signals derive from
// completed bars only: the averages at bar i use closes up to bar i-1, so
// the entry fills on bar i's path without seeing bar i's close. An opposite
// cross exits and reverses in one intent.
type SMACross struct {
	Fast    int
	Slow    int
	StopPct float64 // protective stop distance as a fraction of last close
	TakePct float64

	lastDiff float64
	haveDiff bool
}

func init() {
	Register("sma-cross", func(p Params) (Strategy, error) {
		fast := int(p.get("fast", 10))
		slow := int(p.get("slow", 30))
		if fast <= 0 || slow <= fast {
			return nil, &engine.ConfigError{Field: "strategy.params", Reason: "need 0 < fast < slow"}
		}
		return &SMACross{
			Fast:    fast,
			Slow:    slow,
			StopPct: p.get("stop_pct", 0.02),
			TakePct: p.get("take_pct", 0.04),
		}, nil
	})
}

func (s *SMACross) Name() string { return "sma-cross" }

func (s *SMACross) OnBar(i int, history []engine.Candle) engine.SignalIntent {
	completed := history[:len(history)-1]
	if len(completed) < s.Slow {
		return engine.SignalIntent{}
	}

	diff := sma(completed, s.Fast) - sma(completed, s.Slow)
	if !s.haveDiff {
		s.lastDiff = diff
		s.haveDiff = true
		return engine.SignalIntent{}
	}

	bull := diff > 0 && s.lastDiff <= 0
	bear := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	ref := completed[len(completed)-1].Close
	switch {
	case bull:
		sig := engine.SignalIntent{EnterLong: true, ExitShort: true}
		if s.StopPct > 0 {
			sig.StopLoss = ref * (1 - s.StopPct)
		}
		if s.TakePct > 0 {
			sig.TakeProfit = ref * (1 + s.TakePct)
		}
		return sig
	case bear:
		sig := engine.SignalIntent{EnterShort: true, ExitLong: true}
		if s.StopPct > 0 {
			sig.StopLoss = ref * (1 + s.StopPct)
		}
		if s.TakePct > 0 {
			sig.TakeProfit = ref * (1 - s.TakePct)
		}
		return sig
	}
	return engine.SignalIntent{}
}

// sma averages the last n closes.
func sma(candles []engine.Candle, n int) float64 {
	sum := 0.0
	for _, c := range candles[len(candles)-n:] {
		sum += c.Close
	}
	return sum / float64(n)
}
