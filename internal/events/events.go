package events

import "github.com/ejyy/matchd/internal/book"

// Event is the closed set of notifications the matching engine can emit
// (spec §4.E, the Handler Contract). Each concrete type below implements it;
// Queue.Drain type-switches on the concrete type to call the matching
// Handler method.
type Event interface {
	isEvent()
}

type AddSymbol struct {
	Symbol book.SymbolID
	Name   string
}

type DeleteSymbol struct {
	Symbol book.SymbolID
}

type AddOrderBook struct {
	Book book.BookID
}

type UpdateOrderBook struct {
	Book       book.BookID
	TopChanged bool
}

type DeleteOrderBook struct {
	Book book.BookID
}

type AddLevel struct {
	Book  book.BookID
	Level book.Level
}

type UpdateLevel struct {
	Book       book.BookID
	Level      book.Level
	TopChanged bool
}

type DeleteLevel struct {
	Book  book.BookID
	Level book.Level
}

type AddOrder struct {
	Book  book.BookID
	Order book.Order
}

type UpdateOrder struct {
	Book  book.BookID
	Order book.Order
}

type DeleteOrder struct {
	Book  book.BookID
	Order book.Order
}

type ExecuteOrder struct {
	Book     book.BookID
	Order    book.Order
	Price    book.Price
	Quantity book.Quantity
}

func (AddSymbol) isEvent()      {}
func (DeleteSymbol) isEvent()   {}
func (AddOrderBook) isEvent()   {}
func (UpdateOrderBook) isEvent() {}
func (DeleteOrderBook) isEvent() {}
func (AddLevel) isEvent()       {}
func (UpdateLevel) isEvent()    {}
func (DeleteLevel) isEvent()    {}
func (AddOrder) isEvent()       {}
func (UpdateOrder) isEvent()    {}
func (DeleteOrder) isEvent()    {}
func (ExecuteOrder) isEvent()   {}
