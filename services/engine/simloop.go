package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// BarSource is the read-only candle handle a run consumes. Implementations
// must be safe for concurrent readers so optimization workers can share one
// loaded dataset.
type BarSource interface {
	Len() int
	Bar(i int) Candle
	// Finer returns the finer-timeframe candles spanning bar i, or nil
	// when intrabar data is not available for it.
	Finer(i int) []Candle
	// HasFiner reports whether the source carries any finer-timeframe data.
	HasFiner() bool
	// Granularity names the finest timeframe the source provides.
	Granularity() string
}

// SliceBars adapts a plain candle slice (no finer data) to BarSource.
type SliceBars struct {
	Candles   []Candle
	Timeframe string
}

func (s SliceBars) Len() int            { return len(s.Candles) }
func (s SliceBars) Bar(i int) Candle    { return s.Candles[i] }
func (s SliceBars) Finer(int) []Candle  { return nil }
func (s SliceBars) HasFiner() bool      { return false }
func (s SliceBars) Granularity() string { return s.Timeframe }

// SignalProvider is the external strategy boundary. OnBar receives the bar
// index and the candles up to and including it and returns declarative
// intents; it never mutates simulator state.
type SignalProvider interface {
	OnBar(i int, history []Candle) SignalIntent
}

// LoopState is the per-bar state machine of a run.
type LoopState int

const (
	StateAwaitingBar LoopState = iota
	StateSignalsRequested
	StateIntrabarResolving
	StateBarSettled
	StateFinished
)

// Loop drives one simulation run: bars in, trades and equity out.
type Loop struct {
	cfg      RunConfig
	broker   *Broker
	gen      PathGenerator
	source   BarSource
	strategy SignalProvider
	log      *zap.Logger
	state    LoopState
}

// NewLoop wires a run. cfg must already be validated.
func NewLoop(cfg RunConfig, source BarSource, strategy SignalProvider, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		cfg:    cfg,
		broker: NewBroker(cfg, logger),
		gen: PathGenerator{
			Policy:          cfg.PathPolicy,
			Subticks:        cfg.Subticks,
			MagnifierCutoff: cfg.MagnifierCutoff,
		},
		source:   source,
		strategy: strategy,
		log:      logger,
	}
}

// State exposes the current machine state, mainly for tests.
func (l *Loop) State() LoopState { return l.state }

// Run iterates the bars until exhaustion or a fatal data error. On a fatal
// error the partial result (bars processed so far) is still returned for
// the caller's disposition.
func (l *Loop) Run() (*Result, error) {
	diag := Diagnostics{
		UsesSyntheticTicks: true,
		PathPolicy:         l.cfg.PathPolicy,
		DataGranularity:    l.source.Granularity(),
	}

	history := make([]Candle, 0, l.source.Len())
	var prevTs int64
	var lastBar Candle
	var lastTickTs int64
	bars := 0

	// The magnifier budget is per run: past the cutoff every bar falls back
	// to the 4-point path so a run is never half-magnified.
	magnify := l.source.HasFiner()
	if magnify {
		total := 0
		for i := 0; i < l.source.Len(); i++ {
			total += len(l.source.Finer(i))
		}
		if total > l.gen.cutoff() {
			magnify = false
			l.log.Info("finer data exceeds magnifier cutoff, degrading to 4-point paths",
				zap.Int("finer_candles", total),
				zap.Int("cutoff", l.gen.cutoff()),
			)
		}
	}

	fail := func(err error) (*Result, error) {
		l.state = StateFinished
		res := l.result(bars, diag)
		return res, err
	}

	for i := 0; i < l.source.Len(); i++ {
		l.state = StateAwaitingBar
		bar := l.source.Bar(i)
		if err := bar.Validate(); err != nil {
			if de, ok := err.(*DataError); ok {
				de.BarIndex = i
			}
			return fail(err)
		}
		if i > 0 && bar.Timestamp <= prevTs {
			return fail(&DataError{
				Reason:    "non-monotonic timestamp",
				Timestamp: bar.Timestamp,
				BarIndex:  i,
			})
		}
		if i > 0 && l.cfg.BarIntervalMs > 0 {
			if missing := int((bar.Timestamp-prevTs)/l.cfg.BarIntervalMs) - 1; missing > l.cfg.MaxGapBars {
				return fail(&DataError{
					Reason:    fmt.Sprintf("gap of %d missing bars exceeds tolerance %d", missing, l.cfg.MaxGapBars),
					Timestamp: bar.Timestamp,
					BarIndex:  i,
				})
			}
		}
		prevTs = bar.Timestamp
		history = append(history, bar)

		// Intents become orders before the tick path exists: protective
		// levels set on this bar must be visible to this bar's resolution.
		l.state = StateSignalsRequested
		intent := l.strategy.OnBar(i, history)
		if err := l.broker.SubmitIntent(intent); err != nil {
			return fail(err)
		}

		l.state = StateIntrabarResolving
		var finer []Candle
		if magnify {
			finer = l.source.Finer(i)
		}
		ticks, magnified := l.gen.BuildPath(bar, finer)
		if !magnified {
			diag.MicrostructureRisk = true
		}
		l.broker.BeginBar()
		for _, tk := range ticks {
			if _, err := l.broker.ProcessTick(tk); err != nil {
				return fail(err)
			}
		}

		l.state = StateBarSettled
		lastTickTs = ticks[len(ticks)-1].Timestamp
		l.broker.SettleBar(bar, lastTickTs)
		lastBar = bar
		bars++
	}

	if bars > 0 {
		l.broker.CloseAll(lastBar.Close, lastTickTs, ExitEndOfData)
	}
	l.state = StateFinished
	return l.result(bars, diag), nil
}

func (l *Loop) result(bars int, diag Diagnostics) *Result {
	return buildResult(l.broker, bars, diag)
}

// buildResult assembles a Result from broker state. Shared by every engine
// variant so result shape never diverges between them.
func buildResult(b *Broker, bars int, diag Diagnostics) *Result {
	diag.DeclinedOrders = b.Diagnostics().DeclinedOrders
	res := &Result{
		Trades:        b.Trades(),
		Equity:        b.EquityCurve(),
		Diagnostics:   diag,
		BarsProcessed: bars,
		FinalEquity:   b.Cash(),
	}
	if res.Trades == nil {
		res.Trades = []Trade{}
	}
	if n := len(res.Equity); n > 0 {
		res.FinalEquity = res.Equity[n-1].Equity
	}
	return res
}
