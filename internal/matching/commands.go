package matching

import (
	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/orderbook"
)

// restingIndexOf returns the index a currently-resting order lives on: a
// stop index for any still-armed stop/stop-limit/trailing variant, the
// corresponding bid/ask side for everything else (market orders are never
// resting, spec §3 invariant, so callers never see Type == Market here).
func restingIndexOf(order book.Order) orderbook.Index {
	if isStopFamily(order.Type) {
		trailing := order.IsTrailingStop() || order.IsTrailingStopLimit()
		return stopIndexFor(order.Side, trailing)
	}
	return restingIndexFor(order.Side)
}

// emitLevelAfter emits the matching onUpdateLevel/onDeleteLevel event for
// idx/h after an in-place mutation or reprice, given whether the level was
// deleted by the operation.
func (e *Engine) emitLevelAfter(bookID book.BookID, ob *orderbook.OrderBook, idx orderbook.Index, before book.Level, h book.LevelHandle, deleted bool) {
	if deleted {
		e.queue.Emit(events.DeleteLevel{Book: bookID, Level: before})
		return
	}
	if current, ok := ob.LevelAt(idx, h); ok {
		e.queue.Emit(events.UpdateLevel{Book: bookID, Level: current, TopChanged: false})
	}
}

// ReduceOrder lowers a resting order's leaves quantity (spec §4.C reduce).
// A reduction to zero or beyond removes the order entirely.
func (e *Engine) ReduceOrder(bookID book.BookID, id book.OrderID, by book.Quantity) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	order, entry, ok := ob.GetOrder(id)
	if !ok {
		return ErrUnknownOrder
	}
	idx := restingIndexOf(order)
	lvlHandle, hasLvl := ob.Store().Level(entry)
	var before book.Level
	if hasLvl {
		before, _ = ob.LevelAt(idx, lvlHandle)
	}

	updated, deleted, err := ob.Reduce(idx, entry, by)
	if err != nil {
		return err
	}
	if deleted {
		e.queue.Emit(events.DeleteOrder{Book: bookID, Order: order})
	} else {
		e.queue.Emit(events.UpdateOrder{Book: bookID, Order: updated})
	}
	if hasLvl {
		e.emitLevelAfter(bookID, ob, idx, before, lvlHandle, deleted)
	}
	return nil
}

// ModifyOrder changes a resting order's price and quantity, always losing
// time priority (spec §4.C modify, §9 Open Question (b)).
func (e *Engine) ModifyOrder(bookID book.BookID, id book.OrderID, newPrice book.Price, newQuantity book.Quantity) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	order, entry, ok := ob.GetOrder(id)
	if !ok {
		return ErrUnknownOrder
	}
	idx := restingIndexOf(order)
	lvlHandle, hasLvl := ob.Store().Level(entry)
	var before book.Level
	if hasLvl {
		before, _ = ob.LevelAt(idx, lvlHandle)
	}

	_, newLevel, created, levelDeleted, err := ob.Modify(idx, entry, newPrice, newQuantity)
	if err != nil {
		return err
	}
	return e.finishReprice(bookID, ob, idx, id, order, before, hasLvl, newLevel, created, levelDeleted)
}

// MitigateOrder shrinks (or cancels) a resting order, preserving time
// priority when the price is unchanged and the new quantity does not grow
// it (spec §4.C mitigate); otherwise it behaves exactly like ModifyOrder.
func (e *Engine) MitigateOrder(bookID book.BookID, id book.OrderID, newPrice book.Price, newQuantity book.Quantity) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	order, entry, ok := ob.GetOrder(id)
	if !ok {
		return ErrUnknownOrder
	}
	idx := restingIndexOf(order)
	lvlHandle, hasLvl := ob.Store().Level(entry)
	var before book.Level
	if hasLvl {
		before, _ = ob.LevelAt(idx, lvlHandle)
	}

	_, newLevel, created, levelDeleted, err := ob.Mitigate(idx, entry, newPrice, newQuantity)
	if err != nil {
		return err
	}
	return e.finishReprice(bookID, ob, idx, id, order, before, hasLvl, newLevel, created, levelDeleted)
}

// finishReprice emits the onUpdateOrder/onDeleteOrder and level events
// common to Modify/Mitigate's aftermath, whether or not the order survived.
// original is the order snapshot captured before the reprice, used to emit
// onDeleteOrder if the reprice mitigated it down to zero leaves.
func (e *Engine) finishReprice(bookID book.BookID, ob *orderbook.OrderBook, idx orderbook.Index, id book.OrderID, original book.Order, before book.Level, hasLvl bool, newLevel book.LevelHandle, created, levelDeleted bool) error {
	updated, _, stillResting := ob.GetOrder(id)
	if stillResting {
		e.queue.Emit(events.UpdateOrder{Book: bookID, Order: updated})
	} else {
		e.queue.Emit(events.DeleteOrder{Book: bookID, Order: original})
	}

	if hasLvl && levelDeleted {
		e.queue.Emit(events.DeleteLevel{Book: bookID, Level: before})
	}
	if stillResting {
		if level, ok := ob.LevelAt(idx, newLevel); ok {
			if created {
				e.queue.Emit(events.AddLevel{Book: bookID, Level: level})
			} else {
				e.queue.Emit(events.UpdateLevel{Book: bookID, Level: level, TopChanged: false})
			}
		}
	}
	return nil
}

// ReplaceOrder cancels id and inserts replacement as a brand-new resting
// order with its own id and time priority (spec §4.C replace). Per §9 Open
// Question (c), the replacement's info is whatever the caller supplies
// (the dispatcher, resolved in DESIGN.md, always forwards the original
// order's info verbatim since the command grammar carries no separate
// field for it).
func (e *Engine) ReplaceOrder(bookID book.BookID, id book.OrderID, replacement book.Order) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	order, entry, ok := ob.GetOrder(id)
	if !ok {
		return ErrUnknownOrder
	}
	idx := restingIndexOf(order)
	lvlHandle, hasLvl := ob.Store().Level(entry)
	var before book.Level
	if hasLvl {
		before, _ = ob.LevelAt(idx, lvlHandle)
	}
	if replacement.Leaves == 0 {
		replacement.Leaves = replacement.Quantity
	}

	_, newLevel, created, levelDeleted, err := ob.Replace(idx, entry, replacement)
	if err != nil {
		return err
	}
	e.queue.Emit(events.DeleteOrder{Book: bookID, Order: order})
	if hasLvl && levelDeleted {
		e.queue.Emit(events.DeleteLevel{Book: bookID, Level: before})
	}
	e.queue.Emit(events.AddOrder{Book: bookID, Order: replacement})
	if level, ok := ob.LevelAt(idx, newLevel); ok {
		if created {
			e.queue.Emit(events.AddLevel{Book: bookID, Level: level})
		} else {
			e.queue.Emit(events.UpdateLevel{Book: bookID, Level: level, TopChanged: false})
		}
	}
	return nil
}

// DeleteOrder cancels a resting order by id.
func (e *Engine) DeleteOrder(bookID book.BookID, id book.OrderID) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}
	order, entry, ok := ob.GetOrder(id)
	if !ok {
		return ErrUnknownOrder
	}
	idx := restingIndexOf(order)
	lvlHandle, hasLvl := ob.Store().Level(entry)
	var before book.Level
	if hasLvl {
		before, _ = ob.LevelAt(idx, lvlHandle)
	}

	levelDeleted, _, err := ob.Delete(idx, entry)
	if err != nil {
		return err
	}
	e.queue.Emit(events.DeleteOrder{Book: bookID, Order: order})
	if hasLvl {
		e.emitLevelAfter(bookID, ob, idx, before, lvlHandle, levelDeleted)
	}
	return nil
}

// DeleteOrderByInfo cancels whichever resting order in bookID carries the
// given info string. Per §9 Open Question (d), when more than one order
// shares the same info, the one with the lowest OrderID is picked (a
// stable, deterministic substitute for the source's unspecified map
// iteration order).
func (e *Engine) DeleteOrderByInfo(bookID book.BookID, info string) error {
	ob, ok := e.books[bookID]
	if !ok {
		return ErrUnknownBook
	}

	var match book.OrderID
	found := false
	for _, idx := range allIndexes {
		ob.Levels(idx, func(h book.LevelHandle, _ book.Level) {
			for _, o := range ob.Orders(h, idx) {
				if o.Info != info {
					continue
				}
				if !found || o.ID < match {
					match, found = o.ID, true
				}
			}
		})
	}
	if !found {
		return ErrUnknownOrder
	}
	return e.DeleteOrder(bookID, match)
}

var allIndexes = []orderbook.Index{
	orderbook.Bid, orderbook.Ask,
	orderbook.BuyStop, orderbook.SellStop,
	orderbook.TrailingBuyStop, orderbook.TrailingSellStop,
}
