// Package orderbook implements the per-symbol Order Book (spec §4.C): the
// six-sided aggregation of Price-Level Indexes the matching engine trades
// against, plus the last-trade price and trailing-stop reference the
// matching loop needs to recompute trailing levels.
package orderbook

import (
	"github.com/ejyy/matchd/internal/book"
	"github.com/pkg/errors"
)

// ErrUnknownOrder mirrors book.ErrUnknownOrder at this layer so callers
// never need to import internal/book just to compare errors.
var ErrUnknownOrder = book.ErrUnknownOrder

// Index identifies which resting index an order belongs to, distinct from
// book.Side: a buy stop order rests on BuyStop, not Bid.
type Index uint8

const (
	Bid Index = iota
	Ask
	BuyStop
	SellStop
	TrailingBuyStop
	TrailingSellStop
)

// OrderBook is the six-index order book for one BookID (spec §3: bid, ask,
// buy-stop, sell-stop, trailing-buy-stop, trailing-sell-stop). All six
// indexes and every resting order share one book.Store, since spec §3
// describes a single "global entity map" per book that the matching engine
// resolves handles against regardless of which side/index an order rests on.
type OrderBook struct {
	ID book.BookID

	store *book.Store

	bid             *book.PriceLevelIndex
	ask             *book.PriceLevelIndex
	buyStop         *book.PriceLevelIndex
	sellStop        *book.PriceLevelIndex
	trailingBuyStop *book.PriceLevelIndex
	trailingSellStop *book.PriceLevelIndex

	lastTrade      book.Price
	hasLastTrade   bool
	trailingAnchor book.Price // last price trailing levels were recomputed against
}

// New creates an empty order book. ask/buyStop/trailingBuyStop ascend
// (best is lowest price: the nearest ask, the nearest buy-stop trigger
// above market); bid/sellStop/trailingSellStop descend (best is highest
// price: the nearest bid, the nearest sell-stop trigger below market).
func New(id book.BookID) *OrderBook {
	return &OrderBook{
		ID:                id,
		store:             book.NewStore(),
		bid:               book.NewIndex(book.Buy, false),
		ask:               book.NewIndex(book.Sell, true),
		buyStop:           book.NewIndex(book.Buy, true),
		sellStop:          book.NewIndex(book.Sell, false),
		trailingBuyStop:   book.NewIndex(book.Buy, true),
		trailingSellStop:  book.NewIndex(book.Sell, false),
	}
}

// indexFor returns the Price-Level Index behind any of the six Index values.
func (b *OrderBook) indexFor(idx Index) *book.PriceLevelIndex {
	switch idx {
	case Bid:
		return b.bid
	case Ask:
		return b.ask
	case BuyStop:
		return b.buyStop
	case SellStop:
		return b.sellStop
	case TrailingBuyStop:
		return b.trailingBuyStop
	case TrailingSellStop:
		return b.trailingSellStop
	}
	panic("orderbook: invalid index")
}

// Store returns the shared order store, for callers (the matching engine)
// that need direct handle-level access (Mutate, Links) beyond the
// index-level Insert/Erase contract.
func (b *OrderBook) Store() *book.Store { return b.store }

// IsStopIndex reports whether idx is one of the four stop-side indexes,
// which are keyed by an order's trigger (StopPrice), not its limit Price.
func IsStopIndex(idx Index) bool {
	switch idx {
	case BuyStop, SellStop, TrailingBuyStop, TrailingSellStop:
		return true
	}
	return false
}

// keyFor returns the price a level index keys an order under: the limit
// price for bid/ask, the trigger price for any stop index (spec §3: stop
// orders "live only in their stop-side index until activated").
func keyFor(idx Index, order book.Order) book.Price {
	if IsStopIndex(idx) {
		return order.StopPrice
	}
	return order.Price
}

// AddLevelOrder rests order within idx, keyed by its limit price (bid/ask)
// or its trigger price (any stop index), creating the level if necessary
// (spec §4.C's add_level_order). Returns the entry and level handles plus
// whether the level was newly created.
func (b *OrderBook) AddLevelOrder(idx Index, order book.Order) (book.EntryHandle, book.LevelHandle, bool, error) {
	return b.indexFor(idx).Insert(b.store, b.ID, keyFor(idx, order), order)
}

// FrontOrder returns the longest-resident order at a level, the one the
// matching loop always trades against next.
func (b *OrderBook) FrontOrder(idx Index, h book.LevelHandle) (book.EntryHandle, book.Order, bool) {
	entry, ok := b.indexFor(idx).FrontEntry(h)
	if !ok {
		return book.EntryHandle{}, book.Order{}, false
	}
	order, ok := b.store.Get(entry)
	if !ok {
		return book.EntryHandle{}, book.Order{}, false
	}
	return entry, order, true
}

// BestOf returns the best (front) level of an arbitrary index, for callers
// (the matching engine) that select the index dynamically by order side.
func (b *OrderBook) BestOf(idx Index) (book.LevelHandle, book.Level, bool) {
	return b.indexFor(idx).Best()
}

// LevelAt returns a copy of the level named by h within idx.
func (b *OrderBook) LevelAt(idx Index, h book.LevelHandle) (book.Level, bool) {
	return b.indexFor(idx).LevelAt(h)
}

// BestBid returns the best (highest price) resting bid level.
func (b *OrderBook) BestBid() (book.LevelHandle, book.Level, bool) { return b.bid.Best() }

// BestAsk returns the best (lowest price) resting ask level.
func (b *OrderBook) BestAsk() (book.LevelHandle, book.Level, bool) { return b.ask.Best() }

// BestBuyStop returns the lowest buy-stop trigger price resting above market.
func (b *OrderBook) BestBuyStop() (book.LevelHandle, book.Level, bool) { return b.buyStop.Best() }

// BestSellStop returns the highest sell-stop trigger price resting below market.
func (b *OrderBook) BestSellStop() (book.LevelHandle, book.Level, bool) { return b.sellStop.Best() }

// BestTrailingBuyStop returns the lowest trailing-buy-stop trigger.
func (b *OrderBook) BestTrailingBuyStop() (book.LevelHandle, book.Level, bool) {
	return b.trailingBuyStop.Best()
}

// BestTrailingSellStop returns the highest trailing-sell-stop trigger.
func (b *OrderBook) BestTrailingSellStop() (book.LevelHandle, book.Level, bool) {
	return b.trailingSellStop.Best()
}

// GetOrder looks up a resting order by id.
func (b *OrderBook) GetOrder(id book.OrderID) (book.Order, book.EntryHandle, bool) {
	return b.store.GetByID(id)
}

// LastTrade returns the last traded price for this book and whether a
// trade has ever occurred (trailing-stop arithmetic and stop activation
// fall back to it when the opposite side of the book has no best quote,
// spec §9 Open Question (a)).
func (b *OrderBook) LastTrade() (book.Price, bool) { return b.lastTrade, b.hasLastTrade }

// SetLastTrade records a new trade price.
func (b *OrderBook) SetLastTrade(p book.Price) {
	b.lastTrade = p
	b.hasLastTrade = true
}

// TrailingAnchor returns the reference price trailing levels were last
// recomputed against.
func (b *OrderBook) TrailingAnchor() (book.Price, bool) {
	if !b.hasLastTrade {
		return 0, false
	}
	return b.trailingAnchor, true
}

// SetTrailingAnchor records the reference price used for the most recent
// trailing-stop fixpoint recomputation.
func (b *OrderBook) SetTrailingAnchor(p book.Price) { b.trailingAnchor = p }

// RefreshVisible recomputes idx's level aggregate after an in-place order
// mutation that changed the visible/hidden split (a matching-loop partial
// fill, mirroring what Mitigate does for the mitigate command).
func (b *OrderBook) RefreshVisible(idx Index, h book.LevelHandle, beforeVisible, beforeHidden, afterVisible, afterHidden book.Quantity) {
	b.indexFor(idx).RefreshVisible(h, beforeVisible, beforeHidden, afterVisible, afterHidden)
}

// Reduce lowers a resting order's leaves quantity in place (spec §4.C
// reduce, used by the `reduce` command; matching-loop partial fills are
// applied by the engine through Store.Mutate instead). A
// reduction to zero leaves removes the order entirely (same as Delete).
func (b *OrderBook) Reduce(idx Index, h book.EntryHandle, by book.Quantity) (book.Order, bool, error) {
	order, ok := b.store.Get(h)
	if !ok {
		return book.Order{}, false, errors.WithStack(book.ErrStaleHandle)
	}
	if by >= order.Leaves {
		_, _, err := b.Delete(idx, h)
		return book.Order{}, true, err
	}
	lvlHandle, ok := b.store.Level(h)
	if !ok {
		return book.Order{}, false, errors.WithStack(book.ErrStaleHandle)
	}
	beforeVisible, beforeHidden := order.VisibleLeaves(), order.Leaves-order.VisibleLeaves()
	err := b.store.Mutate(h, func(o *book.Order) {
		o.Leaves -= by
		o.Executed += by
	})
	if err != nil {
		return book.Order{}, false, err
	}
	updated, _ := b.store.Get(h)
	afterVisible, afterHidden := updated.VisibleLeaves(), updated.Leaves-updated.VisibleLeaves()
	b.indexFor(idx).RefreshVisible(lvlHandle, beforeVisible, beforeHidden, afterVisible, afterHidden)
	return updated, false, nil
}

// Delete removes a resting order entirely (spec §4.C delete). Returns the
// level's remaining price and whether the level itself was deleted.
func (b *OrderBook) Delete(idx Index, h book.EntryHandle) (bool, book.Price, error) {
	index := b.indexFor(idx)
	deleted, price, err := index.Erase(b.store, h)
	if err != nil {
		return false, 0, err
	}
	if _, rmErr := b.store.Remove(h); rmErr != nil {
		return deleted, price, rmErr
	}
	return deleted, price, nil
}

// Modify changes a resting order's price and/or quantity. Per spec §4.C/§9
// Open Question (b), modify is called unconditionally, with no priority
// -preserving fallback: it is always delete-then-reinsert-at-new-price,
// losing time priority even when new_price equals the order's current
// price. (Mitigate is the operation with a conditional fallback.)
func (b *OrderBook) Modify(idx Index, h book.EntryHandle, newPrice book.Price, newQuantity book.Quantity) (book.EntryHandle, book.LevelHandle, bool, bool, error) {
	return b.reprice(idx, h, newPrice, newQuantity)
}

// reprice is the delete-then-reinsert-at-new-key body shared by Modify and
// Mitigate's fallback path.
func (b *OrderBook) reprice(idx Index, h book.EntryHandle, newPrice book.Price, newQuantity book.Quantity) (book.EntryHandle, book.LevelHandle, bool, bool, error) {
	order, ok := b.store.Get(h)
	if !ok {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, errors.WithStack(book.ErrStaleHandle)
	}
	levelDeleted, _, err := b.indexFor(idx).Erase(b.store, h)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	if _, err := b.store.Remove(h); err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}

	if IsStopIndex(idx) {
		order.StopPrice = newPrice
	} else {
		order.Price = newPrice
	}
	order.Quantity = newQuantity
	order.Leaves = newQuantity - order.Executed
	entry, lvl, created, err := b.indexFor(idx).Insert(b.store, b.ID, keyFor(idx, order), order)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	return entry, lvl, created, levelDeleted, nil
}

// RepegStop moves a resting stop/trailing-stop order to a new trigger
// price, preserving its id, quantity and leaves untouched (spec §4.D
// trailing-stop recomputation: "whenever the reference price moves
// favorably ... the recomputed stop price maintains trailing_distance from
// the reference"). A stop index has no time-priority meaning until
// activation, so repegging is always a delete-then-reinsert.
func (b *OrderBook) RepegStop(idx Index, h book.EntryHandle, newStopPrice book.Price) (book.EntryHandle, book.LevelHandle, bool, bool, error) {
	order, ok := b.store.Get(h)
	if !ok {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, errors.WithStack(book.ErrStaleHandle)
	}
	levelDeleted, _, err := b.indexFor(idx).Erase(b.store, h)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	if _, err := b.store.Remove(h); err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	order.StopPrice = newStopPrice
	entry, lvl, created, err := b.indexFor(idx).Insert(b.store, b.ID, keyFor(idx, order), order)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	return entry, lvl, created, levelDeleted, nil
}

// Mitigate implements spec §4.C's mitigate: it preserves time priority only
// when new_price equals the order's current key price (its limit Price for
// bid/ask, its trigger StopPrice for a stop index) AND new_quantity is no
// greater than its current Quantity; otherwise it behaves exactly like
// Modify. The priority-preserving path is an in-place Store.Mutate plus
// level aggregate-volume bookkeeping, never a reinsert.
func (b *OrderBook) Mitigate(idx Index, h book.EntryHandle, newPrice book.Price, newQuantity book.Quantity) (book.EntryHandle, book.LevelHandle, bool, bool, error) {
	order, ok := b.store.Get(h)
	if !ok {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, errors.WithStack(book.ErrStaleHandle)
	}

	preservesPriority := newPrice == keyFor(idx, order) && newQuantity <= order.Quantity
	if !preservesPriority {
		return b.reprice(idx, h, newPrice, newQuantity)
	}

	newLeaves := newQuantity - order.Executed
	if newLeaves <= 0 {
		_, _, err := b.Delete(idx, h)
		return book.EntryHandle{}, book.LevelHandle{}, false, true, err
	}

	lvlHandle, ok := b.store.Level(h)
	if !ok {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, errors.WithStack(book.ErrStaleHandle)
	}
	beforeVisible, beforeHidden := order.VisibleLeaves(), order.Leaves-order.VisibleLeaves()

	err := b.store.Mutate(h, func(o *book.Order) {
		o.Quantity = newQuantity
		o.Leaves = newLeaves
	})
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	updated, _ := b.store.Get(h)
	afterVisible, afterHidden := updated.VisibleLeaves(), updated.Leaves-updated.VisibleLeaves()
	b.indexFor(idx).RefreshVisible(lvlHandle, beforeVisible, beforeHidden, afterVisible, afterHidden)
	return h, lvlHandle, false, false, nil
}

// Replace cancels the order named by h and inserts a brand-new order in
// its place (spec §4.C replace): unlike Modify, the replacement is a
// distinct OrderID with its own fresh time priority, used by the
// cancel-replace command form.
func (b *OrderBook) Replace(idx Index, h book.EntryHandle, replacement book.Order) (book.EntryHandle, book.LevelHandle, bool, bool, error) {
	levelDeleted, _, err := b.indexFor(idx).Erase(b.store, h)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	if _, err := b.store.Remove(h); err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	entry, lvl, created, err := b.indexFor(idx).Insert(b.store, b.ID, keyFor(idx, replacement), replacement)
	if err != nil {
		return book.EntryHandle{}, book.LevelHandle{}, false, false, err
	}
	return entry, lvl, created, levelDeleted, nil
}

// Levels walks every resting level of idx front-to-back.
func (b *OrderBook) Levels(idx Index, fn func(book.LevelHandle, book.Level)) {
	b.indexFor(idx).Levels(fn)
}

// Orders walks the resting orders at a level in arrival order.
func (b *OrderBook) Orders(h book.LevelHandle, idx Index) []book.Order {
	return b.indexFor(idx).Orders(b.store, h)
}

// Empty reports whether idx has no resting levels.
func (b *OrderBook) Empty(idx Index) bool { return b.indexFor(idx).Empty() }

// Len reports the number of live orders across every index in this book.
func (b *OrderBook) Len() int { return b.store.Len() }
