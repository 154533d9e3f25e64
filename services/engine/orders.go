package engine

import "fmt"

// OrderKind is the category an order is matched under in the tick pipeline.
type OrderKind int

const (
	KindEntry OrderKind = iota
	KindStopLoss
	KindTakeProfit
	KindTrailingStop
	KindLiquidation
)

func (k OrderKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindStopLoss:
		return "stop_loss"
	case KindTakeProfit:
		return "take_profit"
	case KindTrailingStop:
		return "trailing_stop"
	case KindLiquidation:
		return "liquidation"
	}
	return fmt.Sprintf("order_kind(%d)", int(k))
}

// EntryType applies to KindEntry orders only.
type EntryType int

const (
	EntryMarket EntryType = iota
	EntryLimit
	EntryStop
)

type OrderState int

const (
	OrderPending OrderState = iota
	OrderActive
	OrderFilled
	OrderCancelled
)

// Order is exclusively owned by one position. Protective orders (stop-loss,
// take-profit, trailing-stop) start Pending and activate on the entry fill.
type Order struct {
	ID         string
	Kind       OrderKind
	Side       Side // position side the order belongs to
	Type       EntryType
	Trigger    float64 // trigger/limit price; 0 for market entries
	Size       float64 // 0 on exit orders means full position size
	State      OrderState
	ReduceOnly bool // market entry that may only close the position

	TrailOffset float64 // trailing distance in price units
	best        float64 // best price seen since activation

	parentID string // entry order this protective order is attached to

	// evaluated reports that the order has been price-checked at least
	// once since it became eligible (activation or bar open). The first
	// check uses gap pricing: within a bar the synthetic path is
	// continuous, but across activation points and bar boundaries price
	// may jump straight through the trigger.
	evaluated bool
}

func (o *Order) open() bool {
	return o.State == OrderPending || o.State == OrderActive
}

// OrderBook holds every order of the current run that has not reached a
// terminal state. Matching order is insertion order within a kind.
type OrderBook struct {
	orders []*Order
	nextID int
}

func NewOrderBook() *OrderBook {
	return &OrderBook{}
}

// Add assigns a deterministic id and stores the order. Deterministic ids
// keep re-runs of identical inputs byte-identical.
func (b *OrderBook) Add(o *Order) *Order {
	b.nextID++
	o.ID = fmt.Sprintf("o-%d", b.nextID)
	b.orders = append(b.orders, o)
	return o
}

// ByKind returns the open orders of one kind, in insertion order.
func (b *OrderBook) ByKind(kind OrderKind) []*Order {
	var out []*Order
	for _, o := range b.orders {
		if o.Kind == kind && o.open() {
			out = append(out, o)
		}
	}
	return out
}

// activateChildren flips the protective orders attached to a filled entry
// from pending to active and arms trailing stops with the fill price.
func (b *OrderBook) activateChildren(parentID string, refPrice float64) {
	for _, o := range b.orders {
		if o.State != OrderPending || o.parentID != parentID {
			continue
		}
		switch o.Kind {
		case KindStopLoss, KindTakeProfit:
			o.State = OrderActive
		case KindTrailingStop:
			o.State = OrderActive
			o.best = refPrice
			if o.Trigger == 0 {
				o.Trigger = initialTrail(o.Side, refPrice, o.TrailOffset)
			}
		default:
			continue
		}
		// the path is continuous from the entry fill onward, so a level
		// crossed later in this bar trades exactly at its trigger
		o.evaluated = true
	}
}

// cancelChildren removes the protective orders attached to a declined entry.
func (b *OrderBook) cancelChildren(parentID string) {
	for _, o := range b.orders {
		if o.parentID == parentID && o.open() {
			o.State = OrderCancelled
		}
	}
}

// cancelOwned cancels every order owned by the closing position: active
// protective orders and open reduce-only exits. Pending protective orders
// attached to a not-yet-filled entry belong to the next position and
// survive.
func (b *OrderBook) cancelOwned() {
	for _, o := range b.orders {
		if !o.open() {
			continue
		}
		if (protectiveKind(o.Kind) && o.State == OrderActive) || (o.Kind == KindEntry && o.ReduceOnly) {
			o.State = OrderCancelled
		}
	}
}

// CancelKind cancels open orders of one kind (used when a fresh intent
// replaces the protective levels of an open position).
func (b *OrderBook) CancelKind(kind OrderKind) {
	for _, o := range b.orders {
		if o.Kind == kind && o.open() {
			o.State = OrderCancelled
		}
	}
}

func (b *OrderBook) compact() {
	live := b.orders[:0]
	for _, o := range b.orders {
		if o.open() {
			live = append(live, o)
		}
	}
	b.orders = live
}

func initialTrail(side Side, ref, offset float64) float64 {
	if side == SideLong {
		return ref - offset
	}
	return ref + offset
}

// stopTriggered is the side-correct protective stop comparison: a long stop
// fires at price <= trigger, a short stop at price >= trigger.
func stopTriggered(side Side, trigger, price float64) bool {
	if side == SideLong {
		return price <= trigger
	}
	return price >= trigger
}

// takeProfitTriggered mirrors stopTriggered on the favorable side.
func takeProfitTriggered(side Side, trigger, price float64) bool {
	if side == SideLong {
		return price >= trigger
	}
	return price <= trigger
}

// entryTriggered reports whether a limit or stop entry is touched by price.
func entryTriggered(o *Order, price float64) bool {
	switch o.Type {
	case EntryMarket:
		return true
	case EntryLimit:
		if o.Side == SideLong {
			return price <= o.Trigger
		}
		return price >= o.Trigger
	case EntryStop:
		if o.Side == SideLong {
			return price >= o.Trigger
		}
		return price <= o.Trigger
	}
	return false
}

// triggerFillPrice resolves the execution price of a touched trigger. The
// synthetic path is piecewise continuous, so a level crossed mid-path trades
// exactly at its trigger. On an order's first evaluation price may have
// gapped straight through the level (bar open, or a just-activated order
// already beyond its trigger); then the tradable price is the tick itself.
func triggerFillPrice(trigger, price float64, gap bool) float64 {
	if gap {
		return price
	}
	return trigger
}

// resetEvaluated marks every open order for gap pricing at its next check.
// Called at each bar open, where the tick stream is discontinuous.
func (b *OrderBook) resetEvaluated() {
	for _, o := range b.orders {
		if o.open() {
			o.evaluated = false
		}
	}
}
