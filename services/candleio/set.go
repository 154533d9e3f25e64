// Package candleio loads, validates and caches candle data for the
// simulator: CSV and ClickHouse sources, an Arrow IPC cache format, and
// the read-only candle set handed to the engine.
package candleio

import (
	"fmt"
	"strconv"
	"strings"

	"backsim/services/engine"
)

// CandleSet is an immutable, index-aligned candle container: the base
// timeframe the strategy sees plus, optionally, finer-timeframe candles for
// intrabar magnification. It implements engine.BarSource and is safe for
// concurrent readers once built.
type CandleSet struct {
	base      []engine.Candle
	timeframe string

	finer          []engine.Candle
	finerTimeframe string
	// span[i] is the [start, end) range in finer covering base bar i
	span [][2]int
}

// NewCandleSet builds a set from base candles alone.
func NewCandleSet(base []engine.Candle, timeframe string) (*CandleSet, error) {
	if len(base) == 0 {
		return nil, &engine.DataError{Reason: "empty candle set"}
	}
	if err := validateSorted(base); err != nil {
		return nil, err
	}
	return &CandleSet{base: base, timeframe: timeframe}, nil
}

// WithFiner attaches finer-timeframe candles and indexes them against the
// base bars. Finer candles outside any base bar's span are rejected: they
// would silently change which bar resolves a fill.
func (s *CandleSet) WithFiner(finer []engine.Candle, timeframe string) (*CandleSet, error) {
	if err := validateSorted(finer); err != nil {
		return nil, err
	}
	step, err := TimeframeMillis(s.timeframe)
	if err != nil {
		return nil, err
	}

	out := *s
	out.finer = finer
	out.finerTimeframe = timeframe
	out.span = make([][2]int, len(s.base))

	j := 0
	for i, bar := range s.base {
		barEnd := bar.Timestamp + step
		if j < len(finer) && finer[j].Timestamp < bar.Timestamp {
			return nil, &engine.DataError{
				Reason:    "finer candle not covered by any base bar",
				Timestamp: finer[j].Timestamp,
			}
		}
		start := j
		for j < len(finer) && finer[j].Timestamp < barEnd {
			j++
		}
		out.span[i] = [2]int{start, j}
	}
	if j < len(finer) {
		return nil, &engine.DataError{
			Reason:    "finer candle past the last base bar",
			Timestamp: finer[j].Timestamp,
		}
	}
	return &out, nil
}

func (s *CandleSet) Len() int                { return len(s.base) }
func (s *CandleSet) Bar(i int) engine.Candle { return s.base[i] }

func (s *CandleSet) Finer(i int) []engine.Candle {
	if s.span == nil {
		return nil
	}
	sp := s.span[i]
	if sp[0] == sp[1] {
		return nil
	}
	return s.finer[sp[0]:sp[1]]
}

func (s *CandleSet) HasFiner() bool { return len(s.finer) > 0 }

func (s *CandleSet) Granularity() string {
	if s.HasFiner() {
		return s.finerTimeframe
	}
	return s.timeframe
}

// Gap is one missing stretch in an otherwise regular candle stream.
type Gap struct {
	AfterTimestamp int64
	MissingBars    int
}

// DetectGaps reports missing intervals in sorted candles given the expected
// bar step. Small gaps are normal in real market data; rejection is the
// caller's call via ValidateGaps.
func DetectGaps(candles []engine.Candle, stepMs int64) []Gap {
	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		d := candles[i].Timestamp - candles[i-1].Timestamp
		if d > stepMs {
			gaps = append(gaps, Gap{
				AfterTimestamp: candles[i-1].Timestamp,
				MissingBars:    int(d/stepMs) - 1,
			})
		}
	}
	return gaps
}

// ValidateGaps rejects a candle stream whose widest gap exceeds maxGapBars
// consecutive missing bars. The full gap report is returned either way so
// tolerated gaps can still be logged.
func ValidateGaps(candles []engine.Candle, stepMs int64, maxGapBars int) ([]Gap, error) {
	gaps := DetectGaps(candles, stepMs)
	for _, g := range gaps {
		if g.MissingBars > maxGapBars {
			return gaps, &engine.DataError{
				Reason:    fmt.Sprintf("gap of %d missing bars exceeds tolerance %d", g.MissingBars, maxGapBars),
				Timestamp: g.AfterTimestamp,
			}
		}
	}
	return gaps, nil
}

func validateSorted(candles []engine.Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			if de, ok := err.(*engine.DataError); ok {
				de.BarIndex = i
			}
			return err
		}
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return &engine.DataError{Reason: "non-monotonic timestamp", Timestamp: c.Timestamp, BarIndex: i}
		}
	}
	return nil
}

// TimeframeMillis parses a compact timeframe label ("1m", "5m", "1h", "4h",
// "1d") into its bar duration in milliseconds.
func TimeframeMillis(tf string) (int64, error) {
	if len(tf) < 2 {
		return 0, &engine.ConfigError{Field: "timeframe", Reason: fmt.Sprintf("malformed timeframe %q", tf)}
	}
	unit := tf[len(tf)-1]
	n, err := strconv.ParseInt(strings.TrimSpace(tf[:len(tf)-1]), 10, 64)
	if err != nil || n <= 0 {
		return 0, &engine.ConfigError{Field: "timeframe", Reason: fmt.Sprintf("malformed timeframe %q", tf)}
	}
	switch unit {
	case 's':
		return n * 1_000, nil
	case 'm':
		return n * 60_000, nil
	case 'h':
		return n * 3_600_000, nil
	case 'd':
		return n * 86_400_000, nil
	}
	return 0, &engine.ConfigError{Field: "timeframe", Reason: fmt.Sprintf("unknown timeframe unit %q", string(unit))}
}
