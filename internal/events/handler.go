package events

import "github.com/ejyy/matchd/internal/book"

// Handler is the Handler Contract of spec §4.E: the set of callbacks a
// durability adapter, a CSV feed, or a test harness registers to observe
// every change the matching engine makes. Implementations must not call
// back into the engine; Queue guarantees callbacks only ever run after the
// engine call that produced them has returned.
type Handler interface {
	OnAddSymbol(id book.SymbolID, name string)
	OnDeleteSymbol(id book.SymbolID)

	OnAddOrderBook(id book.BookID)
	OnUpdateOrderBook(id book.BookID, topChanged bool)
	OnDeleteOrderBook(id book.BookID)

	OnAddLevel(id book.BookID, level book.Level)
	OnUpdateLevel(id book.BookID, level book.Level, topChanged bool)
	OnDeleteLevel(id book.BookID, level book.Level)

	OnAddOrder(id book.BookID, order book.Order)
	OnUpdateOrder(id book.BookID, order book.Order)
	OnDeleteOrder(id book.BookID, order book.Order)
	OnExecuteOrder(id book.BookID, order book.Order, price book.Price, quantity book.Quantity)
}

// NopHandler implements Handler with no-op methods, for callers that want
// the engine's side effects without a listener (NewQueue falls back to it
// when given a nil handler).
type NopHandler struct{}

func (NopHandler) OnAddSymbol(book.SymbolID, string)                                  {}
func (NopHandler) OnDeleteSymbol(book.SymbolID)                                       {}
func (NopHandler) OnAddOrderBook(book.BookID)                                          {}
func (NopHandler) OnUpdateOrderBook(book.BookID, bool)                                {}
func (NopHandler) OnDeleteOrderBook(book.BookID)                                      {}
func (NopHandler) OnAddLevel(book.BookID, book.Level)                                  {}
func (NopHandler) OnUpdateLevel(book.BookID, book.Level, bool)                         {}
func (NopHandler) OnDeleteLevel(book.BookID, book.Level)                               {}
func (NopHandler) OnAddOrder(book.BookID, book.Order)                                  {}
func (NopHandler) OnUpdateOrder(book.BookID, book.Order)                              {}
func (NopHandler) OnDeleteOrder(book.BookID, book.Order)                              {}
func (NopHandler) OnExecuteOrder(book.BookID, book.Order, book.Price, book.Quantity) {}
