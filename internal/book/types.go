// Package book implements the Price-Level Index and Order Store: the
// lowest-level structures the matching engine builds on (spec §4.A, §4.B).
package book

import (
	"fmt"
)

// OrderID is the engine-wide monotonically increasing order identifier.
type OrderID uint64

// Price is an integer tick price. Negative prices are never valid but the
// type stays signed so that trailing-stop arithmetic (reference - distance)
// can be clamped at zero without wrapping.
type Price int64

// Quantity is an integer order size.
type Quantity int64

// SymbolID identifies a symbol; BookID identifies an order book (spec
// allows `add book <id>` independent of `add symbol <id>`, so the two are
// kept distinct even though most commands key off the book id).
type SymbolID uint32
type BookID uint32

// Side is the side of the book an order rests on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

const (
	sideBuyStr  = "BUY"
	sideSellStr = "SELL"
)

func (s Side) String() string {
	switch s {
	case Buy:
		return sideBuyStr
	case Sell:
		return sideSellStr
	}
	panic("book: invalid side " + fmt.Sprint(uint8(s)))
}

// SideFromString parses the CSV/command spelling of a side.
func SideFromString(v string) (Side, error) {
	switch v {
	case "buy", sideBuyStr:
		return Buy, nil
	case "sell", sideSellStr:
		return Sell, nil
	}
	return 0, fmt.Errorf("book: unsupported side %q", v)
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the full type lattice spec §3 names.
type OrderType uint8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
	TrailingStop
	TrailingStopLimit
)

const (
	typeMarketStr            = "MARKET"
	typeLimitStr             = "LIMIT"
	typeStopStr              = "STOP"
	typeStopLimitStr         = "STOP_LIMIT"
	typeTrailingStopStr      = "TRAILING_STOP"
	typeTrailingStopLimitStr = "TRAILING_STOP_LIMIT"
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return typeMarketStr
	case Limit:
		return typeLimitStr
	case Stop:
		return typeStopStr
	case StopLimit:
		return typeStopLimitStr
	case TrailingStop:
		return typeTrailingStopStr
	case TrailingStopLimit:
		return typeTrailingStopLimitStr
	}
	panic("book: invalid order type " + fmt.Sprint(uint8(t)))
}

// OrderTypeFromString parses the CSV spelling of an order type.
func OrderTypeFromString(v string) (OrderType, error) {
	switch v {
	case typeMarketStr:
		return Market, nil
	case typeLimitStr:
		return Limit, nil
	case typeStopStr:
		return Stop, nil
	case typeStopLimitStr:
		return StopLimit, nil
	case typeTrailingStopStr:
		return TrailingStop, nil
	case typeTrailingStopLimitStr:
		return TrailingStopLimit, nil
	}
	return 0, fmt.Errorf("book: unsupported order type %q", v)
}

// TimeInForce is the TIF lattice spec §3/§4.D names.
type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
	AON
)

const (
	tifGTCStr = "GTC"
	tifIOCStr = "IOC"
	tifFOKStr = "FOK"
	tifAONStr = "AON"
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return tifGTCStr
	case IOC:
		return tifIOCStr
	case FOK:
		return tifFOKStr
	case AON:
		return tifAONStr
	}
	panic("book: invalid time in force " + fmt.Sprint(uint8(t)))
}

// TimeInForceFromString parses the CSV spelling of a time-in-force.
func TimeInForceFromString(v string) (TimeInForce, error) {
	switch v {
	case tifGTCStr:
		return GTC, nil
	case tifIOCStr:
		return IOC, nil
	case tifFOKStr:
		return FOK, nil
	case tifAONStr:
		return AON, nil
	}
	return 0, fmt.Errorf("book: unsupported time in force %q", v)
}

// Order is both the immutable-identity and mutable-state record spec §3
// describes. Immutable fields are set once at construction; Price,
// StopPrice, Quantity, Executed and Leaves are mutated in place by the
// matching engine and by modify/mitigate/replace.
type Order struct {
	ID       OrderID
	SymbolID SymbolID
	Side     Side
	Type     OrderType
	TIF      TimeInForce

	Price            Price
	StopPrice        Price
	Quantity         Quantity
	MaxVisible       Quantity // 0 means not an iceberg order
	Slippage         Price    // only meaningful on market orders; 0 means none
	TrailingDistance Price
	TrailingStep     Price

	// TrailingRef is the reference price (best opposing quote, or last
	// trade) a trailing-stop/trailing-stop-limit order was last repegged
	// against, seeded at order creation. It gates the next repeg's
	// trailing_step check and is never derived back out of StopPrice,
	// since StopPrice can start at an arbitrary value unrelated to any
	// reference. Meaningless for non-trailing orders; not part of the
	// CSV/SQL representation.
	TrailingRef Price

	Executed Quantity
	Leaves   Quantity

	Info string
}

// IsHidden reports whether the order has a capped visible quantity.
func (o Order) IsHidden() bool { return o.MaxVisible > 0 && o.MaxVisible < o.Quantity }

// IsIceberg is an alias for IsHidden; spec §3/glossary uses both terms for
// the same derived flag.
func (o Order) IsIceberg() bool { return o.IsHidden() }

// IsSlippage reports whether a market order carries a maximum permissible
// slippage distance.
func (o Order) IsSlippage() bool { return o.Type == Market && o.Slippage > 0 }

// IsStop reports whether the order is a plain (non-trailing) stop order.
func (o Order) IsStop() bool { return o.Type == Stop }

// IsStopLimit reports whether the order is a plain (non-trailing) stop-limit order.
func (o Order) IsStopLimit() bool { return o.Type == StopLimit }

// IsTrailingStop reports whether the order is a trailing stop (market on activation).
func (o Order) IsTrailingStop() bool { return o.Type == TrailingStop }

// IsTrailingStopLimit reports whether the order is a trailing stop-limit
// (limit on activation).
func (o Order) IsTrailingStopLimit() bool { return o.Type == TrailingStopLimit }

// VisibleLeaves is the quantity a counterparty can see and trade against in
// one fill: capped by MaxVisible for iceberg orders, otherwise the full
// leaves quantity (spec §4.D step 2).
func (o Order) VisibleLeaves() Quantity {
	if o.IsHidden() && o.Leaves > o.MaxVisible {
		return o.MaxVisible
	}
	return o.Leaves
}

// Level is the aggregation of all orders resting at one price on one side
// (spec §3/glossary). The FIFO of resident orders lives in a Store's arena;
// Level only tracks the head/tail handles into it plus aggregate volumes.
type Level struct {
	Side    Side
	Price   Price
	Visible Quantity
	Hidden  Quantity
	Count   int

	head EntryHandle
	tail EntryHandle
}
