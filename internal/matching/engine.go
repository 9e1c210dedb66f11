// Package matching implements the Matching Engine (spec §4.D): the
// price-time matching loop, TIF policies, slippage, and stop/trailing-stop
// activation, on top of internal/orderbook's six-index book.
package matching

import (
	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/orderbook"
	"github.com/pkg/errors"
)

var (
	ErrUnknownBook      = errors.New("matching: unknown order book")
	ErrDuplicateBook    = errors.New("matching: order book already exists")
	ErrUnknownSymbol    = errors.New("matching: unknown symbol")
	ErrDuplicateSymbol  = errors.New("matching: symbol already exists")
	ErrRejectedByTIF    = errors.New("matching: order rejected by time in force")
	ErrDuplicateOrderID = book.ErrDuplicateOrderID
	ErrUnknownOrder     = book.ErrUnknownOrder
)

// Engine is the single-symbol matching engine. It owns zero or more order
// books (one per BookID the `add book` command names) and emits every
// mutation through the shared events.Queue, never calling the registered
// Handler directly (spec §9: "callbacks enqueue events to a ring buffer
// drained after the engine returns").
type Engine struct {
	enabled bool
	queue   *events.Queue

	symbols map[book.SymbolID]string
	books   map[book.BookID]*orderbook.OrderBook
}

// New creates an engine that emits onto queue. Matching starts disabled;
// EnableMatching (called by cmd/matchd after replay, or by the `enable
// matching` command) must run before crossing orders will execute (spec
// §4.D: "matching is gated by a boolean").
func New(queue *events.Queue) *Engine {
	return &Engine{
		queue:   queue,
		symbols: make(map[book.SymbolID]string),
		books:   make(map[book.BookID]*orderbook.OrderBook),
	}
}

// EnableMatching allows crossing orders to execute.
func (e *Engine) EnableMatching() { e.enabled = true }

// DisableMatching stops crossing orders from executing; orders still rest.
func (e *Engine) DisableMatching() { e.enabled = false }

// MatchingEnabled reports the current gate state.
func (e *Engine) MatchingEnabled() bool { return e.enabled }

// AddSymbol registers a symbol name (spec §4.E: "single-symbol
// configurations invoke these once").
func (e *Engine) AddSymbol(id book.SymbolID, name string) error {
	if _, ok := e.symbols[id]; ok {
		return ErrDuplicateSymbol
	}
	e.symbols[id] = name
	e.queue.Emit(events.AddSymbol{Symbol: id, Name: name})
	return nil
}

// DeleteSymbol removes a previously registered symbol.
func (e *Engine) DeleteSymbol(id book.SymbolID) error {
	if _, ok := e.symbols[id]; !ok {
		return ErrUnknownSymbol
	}
	delete(e.symbols, id)
	e.queue.Emit(events.DeleteSymbol{Symbol: id})
	return nil
}

// AddBook creates a new, empty order book under id.
func (e *Engine) AddBook(id book.BookID) error {
	if _, ok := e.books[id]; ok {
		return ErrDuplicateBook
	}
	e.books[id] = orderbook.New(id)
	e.queue.Emit(events.AddOrderBook{Book: id})
	return nil
}

// DeleteBook removes an order book and every order resting in it.
func (e *Engine) DeleteBook(id book.BookID) error {
	if _, ok := e.books[id]; !ok {
		return ErrUnknownBook
	}
	delete(e.books, id)
	e.queue.Emit(events.DeleteOrderBook{Book: id})
	return nil
}

// Book returns the order book for id, for query commands (`get book`).
func (e *Engine) Book(id book.BookID) (*orderbook.OrderBook, bool) {
	ob, ok := e.books[id]
	return ob, ok
}

// GetOrder looks up a resting order across whichever book holds it.
func (e *Engine) GetOrder(bookID book.BookID, id book.OrderID) (book.Order, bool) {
	ob, ok := e.books[bookID]
	if !ok {
		return book.Order{}, false
	}
	order, _, ok := ob.GetOrder(id)
	return order, ok
}

func isStopFamily(t book.OrderType) bool {
	switch t {
	case book.Stop, book.StopLimit, book.TrailingStop, book.TrailingStopLimit:
		return true
	}
	return false
}

// restingIndexFor returns the index a plain (non-stop) order of side rests
// on: buys rest on the bid side, sells on the ask side.
func restingIndexFor(side book.Side) orderbook.Index {
	if side == book.Buy {
		return orderbook.Bid
	}
	return orderbook.Ask
}

// oppositeIndexFor returns the resting index an order of side trades
// against: a buy crosses the ask side, a sell crosses the bid side.
func oppositeIndexFor(side book.Side) orderbook.Index {
	if side == book.Buy {
		return orderbook.Ask
	}
	return orderbook.Bid
}

// stopIndexFor returns the stop-side index a stop/stop-limit (or trailing
// variant) order of side rests on while armed.
func stopIndexFor(side book.Side, trailing bool) orderbook.Index {
	switch {
	case side == book.Buy && !trailing:
		return orderbook.BuyStop
	case side == book.Sell && !trailing:
		return orderbook.SellStop
	case side == book.Buy && trailing:
		return orderbook.TrailingBuyStop
	default:
		return orderbook.TrailingSellStop
	}
}
