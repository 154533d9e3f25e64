package engine

import (
	"fmt"

	"go.uber.org/zap"
)

// tickStep is one stage of the fixed tick priority pipeline. halt stops the
// remaining stages of the same tick (liquidation short-circuit).
type tickStep func(b *Broker, t Tick) (fills []Fill, halt bool, err error)

// Broker consumes the tick stream, matches it against the order book under
// the fixed priority contract and mutates position, cash and equity state.
// It is strictly single-threaded: the priority ordering is only meaningful
// under total tick ordering.
type Broker struct {
	cfg  RunConfig
	fees FeeModel
	slip SlippageModel
	book *OrderBook
	log  *zap.Logger

	pos             *Position
	cash            float64
	entryCommission float64

	trades []Trade
	equity []EquityPoint
	diag   Diagnostics

	steps       []tickStep
	nextTradeID int
}

// NewBroker wires the pipeline. cfg must already be validated.
func NewBroker(cfg RunConfig, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	slip, _ := cfg.Slippage.build()
	b := &Broker{
		cfg:  cfg,
		fees: ProportionalFee{Rate: cfg.CommissionRate},
		slip: slip,
		book: NewOrderBook(),
		log:  logger,
		cash: cfg.InitialCapital,
	}
	// The contract fixes the stage order: liquidation always first and
	// short-circuiting, stop-loss vs take-profit per sl_priority, then
	// entries, trailing recompute, excursion update.
	b.steps = []tickStep{(*Broker).stepLiquidation}
	if cfg.StopLossFirst {
		b.steps = append(b.steps, (*Broker).stepStops, (*Broker).stepTakeProfits)
	} else {
		b.steps = append(b.steps, (*Broker).stepTakeProfits, (*Broker).stepStops)
	}
	b.steps = append(b.steps, (*Broker).stepEntries, (*Broker).stepTrailing, (*Broker).stepExcursion)
	return b
}

func (b *Broker) Position() *Position       { return b.pos }
func (b *Broker) Book() *OrderBook         { return b.book }
func (b *Broker) Trades() []Trade          { return b.trades }
func (b *Broker) EquityCurve() []EquityPoint { return b.equity }
func (b *Broker) Diagnostics() Diagnostics { return b.diag }

// Cash returns the realized balance.
func (b *Broker) Cash() float64 { return b.cash }

// equityAt marks the account to the given price.
func (b *Broker) equityAt(price float64) float64 {
	if b.pos != nil {
		return b.cash + b.pos.Unrealized(price)
	}
	return b.cash
}

func (b *Broker) sampleEquity(ts int64, price float64) {
	b.equity = append(b.equity, EquityPoint{Timestamp: ts, Equity: b.equityAt(price)})
}

// BeginBar marks the bar boundary: the opening print may gap straight
// through resting triggers, so every open order falls back to gap fill
// pricing on its next evaluation.
func (b *Broker) BeginBar() {
	b.book.resetEvaluated()
}

// SettleBar appends exactly one equity sample for the bar, regardless of
// whether any fill occurred, and advances the holding-time counter.
func (b *Broker) SettleBar(bar Candle, lastTickTs int64) {
	if b.pos != nil {
		b.pos.BarsOpen++
	}
	b.equity = append(b.equity, EquityPoint{Timestamp: lastTickTs, Equity: b.equityAt(bar.Close)})
	b.book.compact()
}

// ProcessTick runs the six-stage priority pipeline over one tick. A fill is
// atomic: all account mutation for a stage completes before the next stage
// observes the state.
func (b *Broker) ProcessTick(t Tick) ([]Fill, error) {
	var fills []Fill
	for _, step := range b.steps {
		fs, halt, err := step(b, t)
		fills = append(fills, fs...)
		if err != nil {
			return fills, err
		}
		if halt {
			break
		}
	}
	return fills, nil
}

// stepLiquidation force-closes the position when the maintenance margin is
// breached. It short-circuits every other stage of this tick and cancels
// all remaining orders of the position.
func (b *Broker) stepLiquidation(t Tick) ([]Fill, bool, error) {
	if !breachesMargin(b.cfg.MarginMode, b.pos, b.cash, t.Price, b.cfg.MaintenanceMargin) {
		return nil, false, nil
	}
	fill := b.closePosition(t.Price, t.Timestamp, ExitLiquidation, "")
	b.log.Info("position liquidated",
		zap.Float64("price", fill.Price),
		zap.Int64("ts", t.Timestamp),
	)
	return []Fill{fill}, true, nil
}

// stepStops evaluates stop-loss and trailing-stop triggers. A trailing
// trigger tightened by stage 5 of tick T is first visible here on tick T+1.
func (b *Broker) stepStops(t Tick) ([]Fill, bool, error) {
	return b.matchProtective(t, func(o *Order) (bool, ExitReason) {
		switch o.Kind {
		case KindStopLoss:
			return stopTriggered(o.Side, o.Trigger, t.Price), ExitStopLoss
		case KindTrailingStop:
			if o.best == 0 {
				// armed on a later tick than it was submitted; not live yet
				return false, ExitTrailingStop
			}
			return stopTriggered(o.Side, o.Trigger, t.Price), ExitTrailingStop
		}
		return false, ""
	})
}

func (b *Broker) stepTakeProfits(t Tick) ([]Fill, bool, error) {
	return b.matchProtective(t, func(o *Order) (bool, ExitReason) {
		if o.Kind != KindTakeProfit {
			return false, ""
		}
		return takeProfitTriggered(o.Side, o.Trigger, t.Price), ExitTakeProfit
	})
}

func (b *Broker) matchProtective(t Tick, match func(*Order) (bool, ExitReason)) ([]Fill, bool, error) {
	for _, o := range b.book.orders {
		if o.State != OrderActive || !protectiveKind(o.Kind) {
			continue
		}
		if b.pos == nil {
			return nil, false, fmt.Errorf("%w: order %s (%s)", ErrOrphanOrder, o.ID, o.Kind)
		}
		if o.Side != b.pos.Side {
			continue
		}
		hit, reason := match(o)
		if !hit {
			o.evaluated = true
			continue
		}
		raw := triggerFillPrice(o.Trigger, t.Price, !o.evaluated)
		o.State = OrderFilled
		fill := b.closePosition(raw, t.Timestamp, reason, o.ID)
		return []Fill{fill}, false, nil
	}
	return nil, false, nil
}

func protectiveKind(k OrderKind) bool {
	return k == KindStopLoss || k == KindTakeProfit || k == KindTrailingStop
}

// stepEntries matches entry orders: reduce-only exits, then market/limit/
// stop entries with margin funding and the pyramiding cap.
func (b *Broker) stepEntries(t Tick) ([]Fill, bool, error) {
	var fills []Fill
	for _, o := range b.book.ByKind(KindEntry) {
		if o.ReduceOnly {
			if b.pos == nil || b.pos.Side != o.Side {
				o.State = OrderCancelled
				continue
			}
			o.State = OrderFilled
			fills = append(fills, b.closePosition(t.Price, t.Timestamp, ExitSignal, o.ID))
			continue
		}
		if !entryTriggered(o, t.Price) {
			o.evaluated = true
			continue
		}
		raw := t.Price
		if o.Type != EntryMarket {
			raw = triggerFillPrice(o.Trigger, t.Price, !o.evaluated)
		}
		fill, ok := b.fillEntry(o, raw, t.Timestamp)
		if ok {
			fills = append(fills, fill)
		}
	}
	return fills, false, nil
}

func (b *Broker) fillEntry(o *Order, raw float64, ts int64) (Fill, bool) {
	if b.pos != nil && b.pos.Side != o.Side {
		b.decline(o, "entry against open position")
		return Fill{}, false
	}
	if b.pos != nil && b.pos.Entries >= b.cfg.MaxEntries {
		b.decline(o, fmt.Sprintf("pyramiding limit %d reached", b.cfg.MaxEntries))
		return Fill{}, false
	}

	buy := o.Side == SideLong
	px := b.slip.Apply(raw, buy)
	commission := b.fees.Commission(px, o.Size)
	required := px * o.Size / b.cfg.Leverage
	free := freeMargin(b.cfg.MarginMode, b.pos, b.cash, px)
	if required+commission > free {
		merr := &MarginError{Required: required + commission, Free: free}
		b.log.Warn("entry declined", zap.String("order", o.ID), zap.Error(merr))
		b.decline(o, "")
		return Fill{}, false
	}

	b.cash -= commission
	b.entryCommission += commission
	if b.pos == nil {
		b.pos = openPosition(o.Side, px, o.Size, b.cfg.Leverage, b.cfg, ts)
	} else {
		b.pos.addFill(px, o.Size, b.cfg)
	}
	o.State = OrderFilled
	b.book.activateChildren(o.ID, px)

	fill := Fill{
		OrderID:    o.ID,
		Kind:       KindEntry,
		Side:       o.Side,
		Price:      px,
		Size:       o.Size,
		Commission: commission,
		Timestamp:  ts,
	}
	b.sampleEquity(ts, px)
	return fill, true
}

// decline cancels the order and its attached protective orders; the run
// continues.
func (b *Broker) decline(o *Order, why string) {
	o.State = OrderCancelled
	b.book.cancelChildren(o.ID)
	b.diag.DeclinedOrders++
	if why != "" {
		b.log.Warn("entry declined", zap.String("order", o.ID), zap.String("reason", why))
	}
}

// stepTrailing recomputes trailing triggers from the best price seen since
// activation. The trigger never loosens, and a level tightened here cannot
// fire before the next tick's stop stage.
func (b *Broker) stepTrailing(t Tick) ([]Fill, bool, error) {
	if b.pos == nil {
		return nil, false, nil
	}
	for _, o := range b.book.ByKind(KindTrailingStop) {
		if o.State != OrderActive || o.Side != b.pos.Side {
			continue
		}
		if o.best == 0 {
			o.best = t.Price
			if o.Trigger == 0 {
				o.Trigger = initialTrail(o.Side, t.Price, o.TrailOffset)
			}
			continue
		}
		if o.Side == SideLong {
			if t.Price > o.best {
				o.best = t.Price
			}
			if next := o.best - o.TrailOffset; next > o.Trigger {
				o.Trigger = next
			}
		} else {
			if t.Price < o.best {
				o.best = t.Price
			}
			if next := o.best + o.TrailOffset; next < o.Trigger {
				o.Trigger = next
			}
		}
	}
	return nil, false, nil
}

// stepExcursion updates MFE/MAE unconditionally on every tick while a
// position is open.
func (b *Broker) stepExcursion(t Tick) ([]Fill, bool, error) {
	if b.pos != nil {
		b.pos.updateExcursion(t.Price)
	}
	return nil, false, nil
}

// closePosition fully closes the open position at raw adjusted by slippage,
// emits the immutable trade record and cancels every order the position
// still owns. Pending orders attached to a not-yet-filled entry survive.
func (b *Broker) closePosition(raw float64, ts int64, reason ExitReason, orderID string) Fill {
	pos := b.pos
	buy := pos.Side == SideShort
	px := b.slip.Apply(raw, buy)

	// The exit print is itself an observed excursion, which keeps
	// |pnl| bounded by max(mfe, |mae|).
	pos.updateExcursion(px)

	exitCommission := b.fees.Commission(px, pos.Size)
	gross := pos.Unrealized(px)
	totalCommission := b.entryCommission + exitCommission
	b.cash += gross - exitCommission

	mfe, mae := pos.Excursions()
	b.nextTradeID++
	b.trades = append(b.trades, Trade{
		ID:         fmt.Sprintf("t-%d", b.nextTradeID),
		Side:       pos.Side,
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  px,
		EntryTime:  pos.OpenedAt,
		ExitTime:   ts,
		Pnl:        gross - totalCommission,
		Commission: totalCommission,
		Mfe:        mfe,
		Mae:        mae,
		BarsHeld:   pos.BarsOpen,
		ExitReason: reason,
	})

	b.pos = nil
	b.entryCommission = 0
	b.book.cancelOwned()

	fill := Fill{
		OrderID:    orderID,
		Kind:       exitKind(reason),
		Side:       pos.Side,
		Price:      px,
		Size:       pos.Size,
		Commission: exitCommission,
		Timestamp:  ts,
		Reason:     reason,
	}
	b.sampleEquity(ts, px)
	return fill
}

func exitKind(reason ExitReason) OrderKind {
	switch reason {
	case ExitStopLoss:
		return KindStopLoss
	case ExitTakeProfit:
		return KindTakeProfit
	case ExitTrailingStop:
		return KindTrailingStop
	case ExitLiquidation:
		return KindLiquidation
	}
	return KindEntry
}

// CloseAll force-closes any open position at the given price (end of data).
func (b *Broker) CloseAll(price float64, ts int64, reason ExitReason) []Fill {
	if b.pos == nil {
		return nil
	}
	return []Fill{b.closePosition(price, ts, reason, "")}
}
