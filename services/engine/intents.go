package engine

// SignalIntent is the declarative per-bar output of a strategy. The
// strategy never mutates positions directly; intents are converted into
// orders before the bar's tick path is generated, so protective levels set
// on this bar participate in this bar's intrabar resolution.
type SignalIntent struct {
	EnterLong  bool
	ExitLong   bool
	EnterShort bool
	ExitShort  bool

	Size       float64 // 0 means RunConfig.OrderSize
	LimitPrice float64 // entry limit; 0 means market
	StopPrice  float64 // entry stop; 0 means market

	StopLoss     float64 // protective stop level; 0 means none
	TakeProfit   float64 // take-profit level; 0 means none
	TrailingStop float64 // trailing distance in price units; 0 means none
}

func (s SignalIntent) empty() bool {
	return !s.EnterLong && !s.ExitLong && !s.EnterShort && !s.ExitShort &&
		s.StopLoss == 0 && s.TakeProfit == 0 && s.TrailingStop == 0
}

// SubmitIntent converts one intent into orders on the book. Contradictory
// protective levels are a ConfigError and abort the run before any tick of
// the bar is resolved. Exits are booked before entries so a reversal closes
// the old position before the new entry is matched.
func (b *Broker) SubmitIntent(sig SignalIntent) error {
	if sig.empty() {
		return nil
	}
	if err := validateIntent(sig); err != nil {
		return err
	}
	if sig.ExitLong {
		b.book.Add(&Order{Kind: KindEntry, Side: SideLong, Type: EntryMarket, ReduceOnly: true, State: OrderActive})
	}
	if sig.ExitShort {
		b.book.Add(&Order{Kind: KindEntry, Side: SideShort, Type: EntryMarket, ReduceOnly: true, State: OrderActive})
	}
	if sig.EnterLong {
		b.submitEntry(sig, SideLong)
	}
	if sig.EnterShort {
		b.submitEntry(sig, SideShort)
	}
	// Fresh protective levels on an open position replace the old ones.
	if !sig.EnterLong && !sig.EnterShort && b.pos != nil {
		b.replaceProtective(sig, b.pos.Side)
	}
	return nil
}

func (b *Broker) submitEntry(sig SignalIntent, side Side) {
	size := sig.Size
	if size == 0 {
		size = b.cfg.OrderSize
	}
	entry := &Order{Kind: KindEntry, Side: side, Type: EntryMarket, Size: size, State: OrderActive}
	switch {
	case sig.LimitPrice > 0:
		entry.Type = EntryLimit
		entry.Trigger = sig.LimitPrice
	case sig.StopPrice > 0:
		entry.Type = EntryStop
		entry.Trigger = sig.StopPrice
	}
	b.book.Add(entry)

	attach := func(kind OrderKind, trigger, trail float64) {
		b.book.Add(&Order{
			Kind:        kind,
			Side:        side,
			Trigger:     trigger,
			TrailOffset: trail,
			State:       OrderPending,
			parentID:    entry.ID,
		})
	}
	if sig.StopLoss > 0 {
		attach(KindStopLoss, sig.StopLoss, 0)
	}
	if sig.TakeProfit > 0 {
		attach(KindTakeProfit, sig.TakeProfit, 0)
	}
	if sig.TrailingStop > 0 {
		attach(KindTrailingStop, 0, sig.TrailingStop)
	}
}

func (b *Broker) replaceProtective(sig SignalIntent, side Side) {
	if sig.StopLoss > 0 {
		b.book.CancelKind(KindStopLoss)
		b.book.Add(&Order{Kind: KindStopLoss, Side: side, Trigger: sig.StopLoss, State: OrderActive})
	}
	if sig.TakeProfit > 0 {
		b.book.CancelKind(KindTakeProfit)
		b.book.Add(&Order{Kind: KindTakeProfit, Side: side, Trigger: sig.TakeProfit, State: OrderActive})
	}
	if sig.TrailingStop > 0 {
		b.book.CancelKind(KindTrailingStop)
		// armed lazily by the trailing stage at the next tick
		b.book.Add(&Order{Kind: KindTrailingStop, Side: side, TrailOffset: sig.TrailingStop, State: OrderActive})
	}
}

// validateIntent rejects protective levels that contradict the entry
// direction, e.g. a take-profit below the entry reference on a long.
func validateIntent(sig SignalIntent) error {
	check := func(side Side) error {
		ref := sig.LimitPrice
		if ref == 0 {
			ref = sig.StopPrice
		}
		sl, tp := sig.StopLoss, sig.TakeProfit
		if sl > 0 && tp > 0 {
			if side == SideLong && tp <= sl {
				return &ConfigError{Field: "take_profit", Reason: "must be above stop_loss on a long"}
			}
			if side == SideShort && tp >= sl {
				return &ConfigError{Field: "take_profit", Reason: "must be below stop_loss on a short"}
			}
		}
		if ref > 0 {
			if side == SideLong {
				if tp > 0 && tp <= ref {
					return &ConfigError{Field: "take_profit", Reason: "must be above the entry price on a long"}
				}
				if sl > 0 && sl >= ref {
					return &ConfigError{Field: "stop_loss", Reason: "must be below the entry price on a long"}
				}
			} else {
				if tp > 0 && tp >= ref {
					return &ConfigError{Field: "take_profit", Reason: "must be below the entry price on a short"}
				}
				if sl > 0 && sl <= ref {
					return &ConfigError{Field: "stop_loss", Reason: "must be above the entry price on a short"}
				}
			}
		}
		return nil
	}
	if sig.EnterLong {
		if err := check(SideLong); err != nil {
			return err
		}
	}
	if sig.EnterShort {
		if err := check(SideShort); err != nil {
			return err
		}
	}
	if sig.EnterLong && sig.EnterShort {
		return &ConfigError{Field: "signal", Reason: "entry long and short on the same bar"}
	}
	return nil
}
