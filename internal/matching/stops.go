package matching

import (
	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/metrics"
	"github.com/ejyy/matchd/internal/orderbook"
)

// activateStops runs the stop/trailing-stop fixpoint (spec §4.D: "activating
// one stop can produce executions that update the reference price and
// activate further stops"). It first repegs trailing stops against the
// current reference, then fires every stop whose trigger condition now
// holds, looping until neither a repeg nor a firing changes anything.
// Reports whether any resting level's top of book changed along the way.
func (e *Engine) activateStops(ob *orderbook.OrderBook, bookID book.BookID) bool {
	changed := false
	for {
		progressed := false
		if e.repegTrailing(ob, bookID, orderbook.TrailingSellStop, book.Sell) {
			progressed, changed = true, true
		}
		if e.repegTrailing(ob, bookID, orderbook.TrailingBuyStop, book.Buy) {
			progressed, changed = true, true
		}
		if e.fireStops(ob, bookID, orderbook.BuyStop, book.Buy) {
			progressed, changed = true, true
		}
		if e.fireStops(ob, bookID, orderbook.SellStop, book.Sell) {
			progressed, changed = true, true
		}
		if e.fireStops(ob, bookID, orderbook.TrailingBuyStop, book.Buy) {
			progressed, changed = true, true
		}
		if e.fireStops(ob, bookID, orderbook.TrailingSellStop, book.Sell) {
			progressed, changed = true, true
		}
		if !progressed {
			break
		}
	}
	return changed
}

// referencePriceFor is spec §4.D's stop trigger/trailing reference: the
// opposing best quote, falling back to the last trade price when the book
// carries none (Open Question (a), resolved in favor of the opposing quote
// since that is what both stop triggering and trailing recompute name
// first before naming the last-trade fallback).
func referencePriceFor(ob *orderbook.OrderBook, stopSide book.Side) (book.Price, bool) {
	if stopSide == book.Buy {
		if _, lvl, ok := ob.BestAsk(); ok {
			return lvl.Price, true
		}
	} else {
		if _, lvl, ok := ob.BestBid(); ok {
			return lvl.Price, true
		}
	}
	return ob.LastTrade()
}

// fireStops activates every order resting on idx whose trigger condition
// currently holds: buy-stops trigger when the reference rises to or past
// their stop price, sell-stops when it falls to or past theirs. Reports
// whether anything fired.
func (e *Engine) fireStops(ob *orderbook.OrderBook, bookID book.BookID, idx orderbook.Index, stopSide book.Side) bool {
	fired := false
	for {
		lvlHandle, lvl, ok := ob.BestOf(idx)
		if !ok {
			break
		}
		ref, hasRef := referencePriceFor(ob, stopSide)
		if !hasRef {
			break
		}
		triggered := ref >= lvl.Price
		if stopSide == book.Sell {
			triggered = ref <= lvl.Price
		}
		if !triggered {
			break
		}

		entry, order, ok := ob.FrontOrder(idx, lvlHandle)
		if !ok {
			break
		}
		levelDeleted, _, err := ob.Delete(idx, entry)
		if err != nil {
			break
		}
		if levelDeleted {
			e.queue.Emit(events.DeleteLevel{Book: bookID, Level: lvl})
		} else if current, ok := ob.LevelAt(idx, lvlHandle); ok {
			e.queue.Emit(events.UpdateLevel{Book: bookID, Level: current, TopChanged: true})
		}

		activated := order
		if activated.IsStop() || activated.IsTrailingStop() {
			activated.Type = book.Market
		} else {
			activated.Type = book.Limit
		}
		fired = true
		metrics.StopsActivated.Inc()
		if err := e.addMatchableOrder(ob, bookID, activated, true); err != nil {
			break
		}
	}
	return fired
}

// initialTrailingRef seeds a new trailing-stop order's repeg reference: the
// current reference price for its side, or — if the book has neither an
// opposing quote nor a last trade yet — the reference implied by its own
// stop price and trailing distance, so the first repeg still has something
// concrete to compare against.
func initialTrailingRef(ob *orderbook.OrderBook, order book.Order) book.Price {
	if ref, ok := referencePriceFor(ob, order.Side); ok {
		return ref
	}
	if order.Side == book.Sell {
		return order.StopPrice + order.TrailingDistance
	}
	return order.StopPrice - order.TrailingDistance
}

// repegTrailing recomputes every resting order on idx's stop price: a
// trailing-sell-stop is reset to `stop_price = reference - trailing_distance`
// (clamped at 0) once the reference has risen by at least trailing_step; a
// trailing-buy-stop mirrors it with `reference + trailing_distance` once the
// reference has fallen by at least trailing_step (spec §4.D, §8 scenario 5).
// The new stop price is not compared with the old one, so a repeg can move
// the stop either way (an initial stop of 90 with distance 100 and a
// reference that rises to 120 is repegged down to 20). The gating
// reference is each order's own `TrailingRef` (the price it was last
// repegged against, or the price observed at order creation) rather than
// anything recovered from the current StopPrice, since the grammar lets a
// caller set an initial StopPrice unrelated to any reference.
func (e *Engine) repegTrailing(ob *orderbook.OrderBook, bookID book.BookID, idx orderbook.Index, stopSide book.Side) bool {
	ref, hasRef := referencePriceFor(ob, stopSide)
	if !hasRef {
		return false
	}

	var candidates []book.Order
	ob.Levels(idx, func(h book.LevelHandle, lvl book.Level) {
		for _, o := range ob.Orders(h, idx) {
			candidates = append(candidates, o)
		}
	})

	changed := false
	for _, order := range candidates {
		_, entry, ok := ob.GetOrder(order.ID)
		if !ok {
			continue
		}

		var newStop book.Price
		if stopSide == book.Sell {
			if ref-order.TrailingRef < order.TrailingStep {
				continue
			}
			newStop = ref - order.TrailingDistance
		} else {
			if order.TrailingRef-ref < order.TrailingStep {
				continue
			}
			newStop = ref + order.TrailingDistance
		}
		if newStop < 0 {
			newStop = 0
		}
		if newStop == order.StopPrice {
			continue
		}

		var beforeLevel book.Level
		hasBeforeLevel := false
		if oldLvlHandle, ok := ob.Store().Level(entry); ok {
			beforeLevel, hasBeforeLevel = ob.LevelAt(idx, oldLvlHandle)
		}

		newEntry, newLevel, created, levelDeleted, err := ob.RepegStop(idx, entry, newStop)
		if err != nil {
			continue
		}
		if err := ob.Store().Mutate(newEntry, func(o *book.Order) { o.TrailingRef = ref }); err != nil {
			continue
		}
		if levelDeleted && hasBeforeLevel {
			e.queue.Emit(events.DeleteLevel{Book: bookID, Level: beforeLevel})
		}
		if level, ok := ob.LevelAt(idx, newLevel); ok {
			if created {
				e.queue.Emit(events.AddLevel{Book: bookID, Level: level})
			} else {
				e.queue.Emit(events.UpdateLevel{Book: bookID, Level: level, TopChanged: true})
			}
		}
		updated, _, _ := ob.GetOrder(order.ID)
		e.queue.Emit(events.UpdateOrder{Book: bookID, Order: updated})
		ob.SetTrailingAnchor(ref)
		changed = true
	}
	return changed
}
