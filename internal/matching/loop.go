package matching

import (
	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/orderbook"
)

// AddOrder is the matching engine's entry point for every `add *` command
// (spec §4.D). It fires onAddOrder once the order is admitted (i.e. after
// an FOK pre-scan would have rejected it, so a rejected FOK order emits no
// callbacks at all, per spec §4.D's FOK clause), runs the matching loop if
// matching is enabled, and rests whatever remains per the order's TIF.
func (e *Engine) AddOrder(bookID book.BookID, order book.Order) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	if _, _, exists := ob.GetOrder(order.ID); exists {
		return ErrDuplicateOrderID
	}
	if order.Leaves == 0 {
		order.Leaves = order.Quantity
	}

	if isStopFamily(order.Type) {
		return e.addStopOrder(ob, bookID, order)
	}
	return e.addMatchableOrder(ob, bookID, order, false)
}

func (e *Engine) addStopOrder(ob *orderbook.OrderBook, bookID book.BookID, order book.Order) error {
	trailing := order.IsTrailingStop() || order.IsTrailingStopLimit()
	idx := stopIndexFor(order.Side, trailing)

	if trailing {
		order.TrailingRef = initialTrailingRef(ob, order)
	}

	e.queue.Emit(events.AddOrder{Book: bookID, Order: order})
	topChanged, err := e.restOrder(ob, bookID, idx, order)
	if err != nil {
		return err
	}
	if e.enabled {
		if e.activateStops(ob, bookID) {
			topChanged = true
		}
	}
	if topChanged {
		e.queue.Emit(events.UpdateOrderBook{Book: bookID, TopChanged: true})
	}
	return nil
}

// addMatchableOrder runs order (a market/limit order, or a stop/trailing
// order that just activated into one) through the matching loop and rests
// whatever remains. activated distinguishes the two: a brand-new order
// announces itself with onAddOrder, while an activated stop already has an
// onAddOrder on record from when it was armed, so it announces its retype
// with onUpdateOrder instead — emitting a second onAddOrder for the same id
// would violate the orders table's primary key (internal/storage).
func (e *Engine) addMatchableOrder(ob *orderbook.OrderBook, bookID book.BookID, order book.Order, activated bool) error {
	oppIdx := oppositeIndexFor(order.Side)

	if order.TIF == book.FOK {
		if !e.enabled || availableLiquidity(ob, oppIdx, order) < order.Leaves {
			return ErrRejectedByTIF
		}
	}

	if activated {
		e.queue.Emit(events.UpdateOrder{Book: bookID, Order: order})
	} else {
		e.queue.Emit(events.AddOrder{Book: bookID, Order: order})
	}

	working := order
	var topChanged bool
	if e.enabled {
		topChanged = e.runMatchingLoop(bookID, ob, &working, oppIdx)
	}

	switch working.TIF {
	case book.IOC, book.FOK:
		// Any remainder is discarded; it was never booked so no onDeleteOrder fires.
	default: // GTC, AON
		if working.Leaves > 0 && working.Type != book.Market {
			restChanged, err := e.restOrder(ob, bookID, restingIndexFor(working.Side), working)
			if err != nil {
				return err
			}
			topChanged = topChanged || restChanged
			if e.enabled {
				if e.activateStops(ob, bookID) {
					topChanged = true
				}
			}
		}
	}

	if topChanged {
		e.queue.Emit(events.UpdateOrderBook{Book: bookID, TopChanged: true})
	}
	return nil
}

// runMatchingLoop repeatedly matches a against the opposite index's best
// level until a's leaves reach zero, prices no longer cross, or a TIF
// policy stops it (spec §4.D). It reports whether the opposite side's top
// of book changed.
func (e *Engine) runMatchingLoop(bookID book.BookID, ob *orderbook.OrderBook, a *book.Order, oppIdx orderbook.Index) bool {
	var reference book.Price
	hasReference := false
	if a.IsSlippage() {
		if _, lvl, ok := ob.BestOf(oppIdx); ok {
			reference, hasReference = lvl.Price, true
		}
	}

	topChanged := false
	for a.Leaves > 0 {
		if a.TIF == book.AON && availableLiquidity(ob, oppIdx, *a) < a.Leaves {
			break
		}

		lvlHandle, lvl, entry, r, ok := nextMatchableLevel(ob, oppIdx, *a, reference, hasReference)
		if !ok {
			break
		}

		x := a.Leaves
		if v := r.VisibleLeaves(); v < x {
			x = v
		}
		price := r.Price

		if e.settleRestingFill(bookID, ob, oppIdx, lvlHandle, entry, r, lvl, x, price) {
			topChanged = true
		}

		a.Leaves -= x
		a.Executed += x
		e.queue.Emit(events.ExecuteOrder{Book: bookID, Order: *a, Price: price, Quantity: x})

		ob.SetLastTrade(price)
		if e.activateStops(ob, bookID) {
			topChanged = true
		}
	}
	return topChanged
}

// nextMatchableLevel scans oppIdx front-to-back for the first level a is
// willing and able to trade against. A level stops the scan outright once
// its price no longer crosses a (or breaches a's slippage bound) — nothing
// further down the book is eligible either. A level whose front order is
// itself AON and cannot be filled in full by a.Leaves is skipped rather
// than ending the scan, since spec §4.D/glossary's "AON... must never
// partially fill" binds the resting side too, not just the aggressor, and
// a worse-priced level may still be fully fillable.
func nextMatchableLevel(ob *orderbook.OrderBook, oppIdx orderbook.Index, a book.Order, reference book.Price, hasReference bool) (book.LevelHandle, book.Level, book.EntryHandle, book.Order, bool) {
	var (
		foundHandle book.LevelHandle
		foundLevel  book.Level
		foundEntry  book.EntryHandle
		foundOrder  book.Order
		found       bool
		stopped     bool
	)
	ob.Levels(oppIdx, func(h book.LevelHandle, lvl book.Level) {
		if found || stopped {
			return
		}
		if !crosses(a, lvl.Price) {
			stopped = true
			return
		}
		if a.IsSlippage() && hasReference && exceedsSlippage(lvl.Price, reference, a.Side, a.Slippage) {
			stopped = true
			return
		}
		entry, r, ok := ob.FrontOrder(oppIdx, h)
		if !ok {
			return
		}
		if r.TIF == book.AON {
			x := a.Leaves
			if v := r.VisibleLeaves(); v < x {
				x = v
			}
			if x != r.Leaves {
				return
			}
		}
		foundHandle, foundLevel, foundEntry, foundOrder, found = h, lvl, entry, r, true
	})
	return foundHandle, foundLevel, foundEntry, foundOrder, found
}

// settleRestingFill applies one fill of quantity x at price to the resting
// order r (found at entry, level lvlHandle, whose pre-fill snapshot is
// lvlBefore), emitting the execution and whatever order/level events
// follow. Returns whether idx's top of book changed.
func (e *Engine) settleRestingFill(bookID book.BookID, ob *orderbook.OrderBook, idx orderbook.Index, lvlHandle book.LevelHandle, entry book.EntryHandle, r book.Order, lvlBefore book.Level, x book.Quantity, price book.Price) bool {
	after := r
	after.Leaves -= x
	after.Executed += x
	e.queue.Emit(events.ExecuteOrder{Book: bookID, Order: after, Price: price, Quantity: x})

	if after.Leaves <= 0 {
		levelDeleted, _, _ := ob.Delete(idx, entry)
		e.queue.Emit(events.DeleteOrder{Book: bookID, Order: after})
		if levelDeleted {
			e.queue.Emit(events.DeleteLevel{Book: bookID, Level: lvlBefore})
			return true
		}
		current, ok := ob.LevelAt(idx, lvlHandle)
		if ok {
			e.queue.Emit(events.UpdateLevel{Book: bookID, Level: current, TopChanged: false})
		}
		return false
	}

	beforeVisible, beforeHidden := r.VisibleLeaves(), r.Leaves-r.VisibleLeaves()
	ob.Store().Mutate(entry, func(o *book.Order) {
		o.Leaves -= x
		o.Executed += x
	})
	afterVisible, afterHidden := after.VisibleLeaves(), after.Leaves-after.VisibleLeaves()
	ob.RefreshVisible(idx, lvlHandle, beforeVisible, beforeHidden, afterVisible, afterHidden)

	e.queue.Emit(events.UpdateOrder{Book: bookID, Order: after})
	if current, ok := ob.LevelAt(idx, lvlHandle); ok {
		e.queue.Emit(events.UpdateLevel{Book: bookID, Level: current, TopChanged: false})
	}
	return false
}

// restOrder inserts order into idx (creating the level if needed) and
// emits the matching onAddLevel/onUpdateLevel event. Returns whether idx's
// top of book changed as a result.
func (e *Engine) restOrder(ob *orderbook.OrderBook, bookID book.BookID, idx orderbook.Index, order book.Order) (bool, error) {
	_, prevBest, hadBest := ob.BestOf(idx)

	_, lvlHandle, created, err := ob.AddLevelOrder(idx, order)
	if err != nil {
		return false, err
	}
	level, ok := ob.LevelAt(idx, lvlHandle)
	if !ok {
		return false, nil
	}

	topChanged := !hadBest || prevBest.Price != level.Price
	if created {
		e.queue.Emit(events.AddLevel{Book: bookID, Level: level})
	} else {
		e.queue.Emit(events.UpdateLevel{Book: bookID, Level: level, TopChanged: topChanged})
	}
	return topChanged, nil
}

// crosses reports whether order (the aggressive side) is willing to trade
// at oppPrice: always true for a market order, otherwise the standard
// limit crossing rule.
func crosses(order book.Order, oppPrice book.Price) bool {
	if order.Type == book.Market {
		return true
	}
	if order.Side == book.Buy {
		return order.Price >= oppPrice
	}
	return order.Price <= oppPrice
}

// exceedsSlippage reports whether candidate deviates from reference by
// more than the order's permitted slippage, in the unfavorable direction.
func exceedsSlippage(candidate, reference book.Price, side book.Side, slippage book.Price) bool {
	if side == book.Buy {
		return candidate > reference+slippage
	}
	return candidate < reference-slippage
}

// availableLiquidity sums the full (visible + hidden) leaves quantity
// resting on oppIdx at prices order is willing to trade at, honoring its
// slippage bound if any. Used by FOK's pre-scan and AON's per-candidate
// aggregate check (spec §4.D).
func availableLiquidity(ob *orderbook.OrderBook, oppIdx orderbook.Index, order book.Order) book.Quantity {
	var reference book.Price
	hasReference := false
	if order.IsSlippage() {
		if _, lvl, ok := ob.BestOf(oppIdx); ok {
			reference, hasReference = lvl.Price, true
		}
	}

	var total book.Quantity
	ob.Levels(oppIdx, func(_ book.LevelHandle, lvl book.Level) {
		if !crosses(order, lvl.Price) {
			return
		}
		if order.IsSlippage() && hasReference && exceedsSlippage(lvl.Price, reference, order.Side, order.Slippage) {
			return
		}
		total += lvl.Visible + lvl.Hidden
	})
	return total
}
