// Package engine implements the sub-bar execution simulator: synthetic
// intrabar path generation, order matching under a fixed event-priority
// contract, the per-bar simulation loop, and the engine-variant parity layer.
package engine

import "fmt"

// Side of a position or of the direction an entry order opens.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// Candle is a single OHLCV bar. Timestamp is the bar open time in
// milliseconds since epoch.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the OHLC invariant low <= open,close <= high.
func (c Candle) Validate() error {
	if c.High < c.Low {
		return &DataError{Reason: fmt.Sprintf("high %v below low %v", c.High, c.Low), Timestamp: c.Timestamp}
	}
	if c.Open < c.Low || c.Open > c.High {
		return &DataError{Reason: fmt.Sprintf("open %v outside [%v, %v]", c.Open, c.Low, c.High), Timestamp: c.Timestamp}
	}
	if c.Close < c.Low || c.Close > c.High {
		return &DataError{Reason: fmt.Sprintf("close %v outside [%v, %v]", c.Close, c.Low, c.High), Timestamp: c.Timestamp}
	}
	return nil
}

// ZeroRange reports whether the candle has no price movement at all.
func (c Candle) ZeroRange() bool {
	return c.Open == c.High && c.High == c.Low && c.Low == c.Close
}

// Tick is one synthetic price point inside a single candle's timespan.
type Tick struct {
	Price     float64
	Timestamp int64
	Synthetic bool
}

// ExitReason distinguishes how a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitLiquidation  ExitReason = "liquidation"
	ExitSignal       ExitReason = "signal"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Fill is one order execution applied to the position.
type Fill struct {
	OrderID    string
	Kind       OrderKind
	Side       Side
	Price      float64
	Size       float64
	Commission float64
	Timestamp  int64
	Reason     ExitReason // empty for entry fills
}

// Trade is the immutable record emitted when a position fully closes.
type Trade struct {
	ID         string
	Side       Side
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  int64
	ExitTime   int64
	Pnl        float64 // net of total commission
	Commission float64 // entry + exit commission
	Mfe        float64 // max favorable excursion, >= 0
	Mae        float64 // max adverse excursion, <= 0
	BarsHeld   int
	ExitReason ExitReason
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Timestamp int64
	Equity    float64
}

// Diagnostics describes the fidelity limits of a finished run.
type Diagnostics struct {
	UsesSyntheticTicks bool       `json:"uses_synthetic_ticks"`
	DataGranularity    string     `json:"data_granularity"`
	PathPolicy         PathPolicy `json:"path_policy"`
	MicrostructureRisk bool       `json:"microstructure_risk"`
	DeclinedOrders     int        `json:"declined_orders"`
}

// Result is everything a single run produces. On a DataError the result
// still carries the bars processed so far.
type Result struct {
	RunID         string
	Engine        string
	Trades        []Trade
	Equity        []EquityPoint
	Diagnostics   Diagnostics
	BarsProcessed int
	FinalEquity   float64
}
