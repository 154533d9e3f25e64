package engine

// PathPolicy selects the assumed order in which prices are visited inside
// one candle when only OHLC is known.
type PathPolicy string

const (
	// PathOpenHighLowClose visits O -> H -> L -> C (worst case first for shorts).
	PathOpenHighLowClose PathPolicy = "open_high_low_close"
	// PathOpenLowHighClose visits O -> L -> H -> C (worst case first for longs).
	PathOpenLowHighClose PathPolicy = "open_low_high_close"
	// PathHeuristic assumes the extremum nearer to the open is reached first.
	PathHeuristic PathPolicy = "heuristic"
)

func (p PathPolicy) Valid() bool {
	switch p {
	case PathOpenHighLowClose, PathOpenLowHighClose, PathHeuristic:
		return true
	}
	return false
}

// DefaultMagnifierCutoff bounds how many finer candles a single run may
// expand. Beyond it the generator fails closed into the 4-point path.
const DefaultMagnifierCutoff = 200_000

// PathGenerator turns one higher-timeframe candle, plus the finer candles
// spanning it when available, into an ordered finite tick sequence.
type PathGenerator struct {
	Policy          PathPolicy
	Subticks        int // interpolated points between consecutive path anchors
	MagnifierCutoff int // 0 means DefaultMagnifierCutoff
}

func (g PathGenerator) cutoff() int {
	if g.MagnifierCutoff > 0 {
		return g.MagnifierCutoff
	}
	return DefaultMagnifierCutoff
}

// BuildPath returns the tick sequence for bar. magnified reports whether the
// finer candles were actually used; when they are missing or exceed the
// cutoff the generator degrades to the bar's own 4-point path rather than
// failing.
func (g PathGenerator) BuildPath(bar Candle, finer []Candle) (ticks []Tick, magnified bool) {
	if len(finer) == 0 || len(finer) > g.cutoff() {
		return g.expand(bar, bar.Timestamp), false
	}
	n := 0
	for _, fc := range finer {
		n += g.TicksPerCandle(fc)
	}
	ticks = make([]Tick, 0, n)
	for _, fc := range finer {
		ticks = g.appendExpand(ticks, fc, fc.Timestamp)
	}
	return ticks, true
}

// expand produces the policy-ordered anchor prices for one candle and
// interpolates Subticks points between each consecutive pair. A zero-range
// candle yields exactly one tick.
func (g PathGenerator) expand(c Candle, baseTs int64) []Tick {
	return g.appendExpand(make([]Tick, 0, g.TicksPerCandle(c)), c, baseTs)
}

// TicksPerCandle is the exact tick count expand emits for one candle,
// letting batch engines preallocate flat buffers.
func (g PathGenerator) TicksPerCandle(c Candle) int {
	if c.ZeroRange() {
		return 1
	}
	return 4 + 3*g.Subticks
}

// appendExpand writes the candle's tick sequence into dst. Both the
// sequential and the batch engine go through this exact arithmetic, so
// their paths agree bit for bit.
func (g PathGenerator) appendExpand(dst []Tick, c Candle, baseTs int64) []Tick {
	if c.ZeroRange() {
		return append(dst, Tick{Price: c.Open, Timestamp: baseTs, Synthetic: true})
	}
	anchors := anchorPrices(c, g.Policy)
	off := int64(0)
	push := func(p float64) {
		dst = append(dst, Tick{Price: p, Timestamp: baseTs + off, Synthetic: true})
		off++
	}
	push(anchors[0])
	for i := 1; i < len(anchors); i++ {
		a, b := anchors[i-1], anchors[i]
		for j := 1; j <= g.Subticks; j++ {
			frac := float64(j) / float64(g.Subticks+1)
			push(a + (b-a)*frac)
		}
		// anchors are preserved exactly, interpolation never replaces them
		push(b)
	}
	return dst
}

// anchorPrices orders O/H/L/C according to the policy. The heuristic
// compares |O-H| against |O-L|: the nearer extremum is assumed touched
// first, ties resolve to the high.
func anchorPrices(c Candle, policy PathPolicy) [4]float64 {
	highFirst := true
	switch policy {
	case PathOpenLowHighClose:
		highFirst = false
	case PathOpenHighLowClose:
	default: // heuristic
		if c.Open-c.Low < c.High-c.Open {
			highFirst = false
		}
	}
	if highFirst {
		return [4]float64{c.Open, c.High, c.Low, c.Close}
	}
	return [4]float64{c.Open, c.Low, c.High, c.Close}
}
