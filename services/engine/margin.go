package engine

// MarginMode selects how liquidation is detected.
type MarginMode string

const (
	// MarginIsolated liquidates against the per-position liquidation price.
	MarginIsolated MarginMode = "isolated"
	// MarginCross liquidates when account equity falls below the
	// maintenance requirement of the open notional.
	MarginCross MarginMode = "cross"
)

func (m MarginMode) Valid() bool {
	return m == MarginIsolated || m == MarginCross
}

// liquidationPrice derives the isolated-margin liquidation level from the
// average entry price.
func liquidationPrice(side Side, entry, leverage, maintenance float64) float64 {
	if side == SideShort {
		return entry * (1 + 1/leverage - maintenance)
	}
	return entry * (1 - 1/leverage + maintenance)
}

// breachesMargin reports whether the position must be force-closed at price.
func breachesMargin(mode MarginMode, pos *Position, cash, price, maintenance float64) bool {
	if pos == nil || pos.Side == SideFlat {
		return false
	}
	switch mode {
	case MarginCross:
		equity := cash + pos.Unrealized(price)
		required := price * pos.Size * maintenance
		return equity < required
	default: // isolated
		if pos.Side == SideLong {
			return price <= pos.LiquidationPrice
		}
		return price >= pos.LiquidationPrice
	}
}

// freeMargin is what remains fundable for a new entry.
func freeMargin(mode MarginMode, pos *Position, cash, price float64) float64 {
	used := 0.0
	unrealized := 0.0
	if pos != nil {
		used = pos.Margin
		if mode == MarginCross {
			unrealized = pos.Unrealized(price)
		}
	}
	return cash + unrealized - used
}
