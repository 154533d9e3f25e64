package engine

// Position is the mutable open-position state. Created on the first entry
// fill, mutated by pyramiding fills, destroyed on full close.
type Position struct {
	Side             Side
	Size             float64
	EntryPrice       float64 // volume-weighted across entry fills
	Leverage         float64
	Margin           float64
	LiquidationPrice float64

	OpenedAt int64
	BarsOpen int
	Entries  int

	mfe float64 // running max of unrealized pnl, >= 0
	mae float64 // running min of unrealized pnl, <= 0
}

func openPosition(side Side, price, size, leverage float64, cfg RunConfig, ts int64) *Position {
	p := &Position{
		Side:     side,
		Size:     size,
		Leverage: leverage,
		OpenedAt: ts,
		Entries:  1,
	}
	p.EntryPrice = price
	p.Margin = price * size / leverage
	p.LiquidationPrice = liquidationPrice(side, price, leverage, cfg.MaintenanceMargin)
	return p
}

// addFill applies a pyramiding entry: weighted-average entry price, added
// margin, recomputed liquidation level.
func (p *Position) addFill(price, size float64, cfg RunConfig) {
	total := p.Size + size
	p.EntryPrice = (p.EntryPrice*p.Size + price*size) / total
	p.Size = total
	p.Margin += price * size / p.Leverage
	p.LiquidationPrice = liquidationPrice(p.Side, p.EntryPrice, p.Leverage, cfg.MaintenanceMargin)
	p.Entries++
}

// Unrealized returns the mark-to-market pnl at price, before commission.
func (p *Position) Unrealized(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// updateExcursion folds one observed price into the MFE/MAE running
// extrema. Called unconditionally on every tick while the position is open.
func (p *Position) updateExcursion(price float64) {
	u := p.Unrealized(price)
	if u > p.mfe {
		p.mfe = u
	}
	if u < p.mae {
		p.mae = u
	}
}

// Excursions returns the favorable and adverse extremes seen so far.
func (p *Position) Excursions() (mfe, mae float64) {
	return p.mfe, p.mae
}
