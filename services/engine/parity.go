package engine

import (
	"fmt"
	"math"
)

// ParityTolerance is the relative tolerance engine variants must agree
// within on every fill price and equity point.
const ParityTolerance = 1e-9

// ScriptedSignals replays a fixed intent per bar index. Used by the
// conformance suite and by callers that precompute signals.
type ScriptedSignals struct {
	Intents map[int]SignalIntent
}

func (s ScriptedSignals) OnBar(i int, _ []Candle) SignalIntent {
	return s.Intents[i]
}

// ConformanceCase is one golden fixture every registered engine must
// reproduce identically to the reference engine.
type ConformanceCase struct {
	Name    string
	Candles []Candle
	Intents map[int]SignalIntent
	Config  RunConfig
}

func (c ConformanceCase) job() Job {
	return Job{
		Config:   c.Config,
		Source:   SliceBars{Candles: c.Candles, Timeframe: "1h"},
		Strategy: ScriptedSignals{Intents: c.Intents},
	}
}

// ConformanceCases is the golden suite. Cases deliberately hit the
// ambiguous orderings: both-sides-touched bars, same-tick SL/liquidation
// collisions, pyramiding, trailing stops and declined entries.
func ConformanceCases() []ConformanceCase {
	hourly := func(i int) int64 { return int64(1700000000000 + i*3_600_000) }
	baseCfg := RunConfig{
		InitialCapital: 10_000,
		Leverage:       10,
		CommissionRate: 0.0004,
		PathPolicy:     PathHeuristic,
		StopLossFirst:  true,
		OrderSize:      2,
	}

	var cases []ConformanceCase

	cases = append(cases, ConformanceCase{
		Name: "sl_first_on_both_touch_long",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
			{Timestamp: hourly(1), Open: 100, High: 112, Low: 90, Close: 105, Volume: 10},
			{Timestamp: hourly(2), Open: 105, High: 106, Low: 104, Close: 105.5, Volume: 10},
		},
		Intents: map[int]SignalIntent{
			1: {EnterLong: true, StopLoss: 95, TakeProfit: 110},
		},
		Config: baseCfg,
	})

	tpFirst := baseCfg
	tpFirst.StopLossFirst = false
	cases = append(cases, ConformanceCase{
		Name: "tp_first_flag_flipped",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
			{Timestamp: hourly(1), Open: 100, High: 112, Low: 90, Close: 105, Volume: 10},
		},
		Intents: map[int]SignalIntent{
			1: {EnterLong: true, StopLoss: 95, TakeProfit: 110},
		},
		Config: tpFirst,
	})

	// Both protective levels satisfied by the very same tick: the bar
	// opens inside the replaced SL/TP band, so only sl_priority decides.
	bothCandles := []Candle{
		{Timestamp: hourly(0), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 6},
		{Timestamp: hourly(1), Open: 104, High: 106, Low: 103.5, Close: 105, Volume: 6},
	}
	bothIntents := map[int]SignalIntent{
		0: {EnterLong: true},
		1: {StopLoss: 105, TakeProfit: 103},
	}
	cases = append(cases, ConformanceCase{
		Name:    "same_tick_both_levels_sl_first",
		Candles: bothCandles,
		Intents: bothIntents,
		Config:  baseCfg,
	})
	bothTP := baseCfg
	bothTP.StopLossFirst = false
	cases = append(cases, ConformanceCase{
		Name:    "same_tick_both_levels_tp_first",
		Candles: bothCandles,
		Intents: bothIntents,
		Config:  bothTP,
	})

	short := baseCfg
	cases = append(cases, ConformanceCase{
		Name: "short_take_profit",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 200, High: 201, Low: 199, Close: 200, Volume: 5},
			{Timestamp: hourly(1), Open: 200, High: 203, Low: 188, Close: 190, Volume: 5},
			{Timestamp: hourly(2), Open: 190, High: 195, Low: 189, Close: 194, Volume: 5},
		},
		Intents: map[int]SignalIntent{
			1: {EnterShort: true, StopLoss: 208, TakeProfit: 189},
		},
		Config: short,
	})

	lev := baseCfg
	lev.Leverage = 20
	lev.MaintenanceMargin = 0.01
	cases = append(cases, ConformanceCase{
		Name: "liquidation_beats_stop",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 3},
			{Timestamp: hourly(1), Open: 100, High: 101, Low: 80, Close: 92, Volume: 3},
		},
		Intents: map[int]SignalIntent{
			1: {EnterLong: true, StopLoss: 90},
		},
		Config: lev,
	})

	pyr := baseCfg
	pyr.MaxEntries = 3
	cases = append(cases, ConformanceCase{
		Name: "pyramiding_weighted_entry",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 100, High: 102, Low: 99, Close: 101, Volume: 8},
			{Timestamp: hourly(1), Open: 101, High: 104, Low: 100, Close: 103, Volume: 8},
			{Timestamp: hourly(2), Open: 103, High: 108, Low: 102, Close: 107, Volume: 8},
			{Timestamp: hourly(3), Open: 107, High: 109, Low: 101, Close: 102, Volume: 8},
		},
		Intents: map[int]SignalIntent{
			0: {EnterLong: true},
			1: {EnterLong: true},
			2: {EnterLong: true, StopLoss: 103},
		},
		Config: pyr,
	})

	trail := baseCfg
	cases = append(cases, ConformanceCase{
		Name: "trailing_stop_ratchet",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 50, High: 50.5, Low: 49.5, Close: 50, Volume: 4},
			{Timestamp: hourly(1), Open: 50, High: 55, Low: 49.8, Close: 54, Volume: 4},
			{Timestamp: hourly(2), Open: 54, High: 58, Low: 53, Close: 57, Volume: 4},
			{Timestamp: hourly(3), Open: 57, High: 57.5, Low: 52, Close: 53, Volume: 4},
		},
		Intents: map[int]SignalIntent{
			1: {EnterLong: true, TrailingStop: 2},
		},
		Config: trail,
	})

	tight := baseCfg
	tight.InitialCapital = 30
	cases = append(cases, ConformanceCase{
		Name: "declined_entry_insufficient_margin",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 100, High: 101, Low: 99, Close: 100, Volume: 2},
			{Timestamp: hourly(1), Open: 100, High: 103, Low: 98, Close: 102, Volume: 2},
		},
		Intents: map[int]SignalIntent{
			0: {EnterLong: true, Size: 5},
		},
		Config: tight,
	})

	zr := baseCfg
	cases = append(cases, ConformanceCase{
		Name: "zero_range_bars",
		Candles: []Candle{
			{Timestamp: hourly(0), Open: 75, High: 75, Low: 75, Close: 75, Volume: 1},
			{Timestamp: hourly(1), Open: 75, High: 75, Low: 75, Close: 75, Volume: 1},
			{Timestamp: hourly(2), Open: 75, High: 76, Low: 74, Close: 74.5, Volume: 1},
		},
		Intents: map[int]SignalIntent{
			0: {EnterLong: true, StopLoss: 74.2, TakeProfit: 75.9},
		},
		Config: zr,
	})

	return cases
}

// CompareResults verifies two results agree under the parity contract:
// identical trade counts, exit reasons, prices within relative tolerance,
// identical equity curve shape and terminal equity.
func CompareResults(ref, got *Result, tol float64) error {
	if len(ref.Trades) != len(got.Trades) {
		return fmt.Errorf("trade count mismatch: reference %d, got %d", len(ref.Trades), len(got.Trades))
	}
	for i := range ref.Trades {
		a, b := ref.Trades[i], got.Trades[i]
		if a.Side != b.Side || a.ExitReason != b.ExitReason || a.BarsHeld != b.BarsHeld {
			return fmt.Errorf("trade %d shape mismatch: %+v vs %+v", i, a, b)
		}
		for _, cmp := range []struct {
			name   string
			av, bv float64
		}{
			{"entry_price", a.EntryPrice, b.EntryPrice},
			{"exit_price", a.ExitPrice, b.ExitPrice},
			{"size", a.Size, b.Size},
			{"pnl", a.Pnl, b.Pnl},
			{"mfe", a.Mfe, b.Mfe},
			{"mae", a.Mae, b.Mae},
		} {
			if !withinRelTol(cmp.av, cmp.bv, tol) {
				return fmt.Errorf("trade %d %s mismatch: %v vs %v", i, cmp.name, cmp.av, cmp.bv)
			}
		}
	}
	if len(ref.Equity) != len(got.Equity) {
		return fmt.Errorf("equity sample count mismatch: %d vs %d", len(ref.Equity), len(got.Equity))
	}
	for i := range ref.Equity {
		if !withinRelTol(ref.Equity[i].Equity, got.Equity[i].Equity, tol) {
			return fmt.Errorf("equity sample %d mismatch: %v vs %v", i, ref.Equity[i].Equity, got.Equity[i].Equity)
		}
	}
	if !withinRelTol(ref.FinalEquity, got.FinalEquity, tol) {
		return fmt.Errorf("terminal equity mismatch: %v vs %v", ref.FinalEquity, got.FinalEquity)
	}
	return nil
}

func withinRelTol(a, b, tol float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= tol*scale
}

// RunConformance runs the golden suite on an engine and reports failures
// against the reference engine. An engine may only be offered for selection
// once this comes back empty.
func RunConformance(e Engine) []string {
	ref, _ := Select(ReferenceEngineName, Job{})
	var failures []string
	for _, tc := range ConformanceCases() {
		job := tc.job()
		want, werr := ref.Run(job)
		got, gerr := e.Run(job)
		if (werr == nil) != (gerr == nil) {
			failures = append(failures, fmt.Sprintf("%s: error mismatch: %v vs %v", tc.Name, werr, gerr))
			continue
		}
		if cerr := CompareResults(want, got, ParityTolerance); cerr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", tc.Name, cerr))
		}
	}
	return failures
}
