package protocol

import (
	"strconv"
	"strings"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/orderbook"
)

const nullLiteral = "NULL"

// orderRowHeader is spec §6's order-row CSV header.
const orderRowHeader = "Id,SymbolId,Type,Side,Price,StopPrice,Quantity,TimeInForce,MaxVisibleQuantity,Slippage,TrailingDistance,TrailingStep,ExecutedQuantity,LeavesQuantity,Info"

// bookDumpHeader is spec §6's book-dump CSV header.
const bookDumpHeader = "Group,LevelType," + orderRowHeaderWithoutInfo + ",Info"

const orderRowHeaderWithoutInfo = "LevelPrice,Id,SymbolId,Type,Side,Price,StopPrice,Quantity,TimeInForce,MaxVisibleQuantity,Slippage,TrailingDistance,TrailingStep,ExecutedQuantity,LeavesQuantity"

func isTrailingFamily(t book.OrderType) bool {
	return t == book.TrailingStop || t == book.TrailingStopLimit
}

func price(p book.Price) string { return strconv.FormatInt(int64(p), 10) }

func quantity(q book.Quantity) string { return strconv.FormatInt(int64(q), 10) }

func priceOrNull(p book.Price, present bool) string {
	if !present {
		return nullLiteral
	}
	return price(p)
}

// quoteInfo renders an info string per spec §6: quoted with `"..."`,
// internal `"` backslash-escaped.
func quoteInfo(info string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range info {
		if r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// formatOrderRow renders one order-row CSV data line (spec §6, no trailing
// newline).
func formatOrderRow(o book.Order) string {
	fields := []string{
		strconv.FormatUint(uint64(o.ID), 10),
		strconv.FormatUint(uint64(o.SymbolID), 10),
		o.Type.String(),
		o.Side.String(),
		price(o.Price),
		price(o.StopPrice),
		quantity(o.Quantity),
		o.TIF.String(),
		priceOrNull(book.Price(o.MaxVisible), o.IsHidden()),
		priceOrNull(o.Slippage, o.IsSlippage()),
		priceOrNull(o.TrailingDistance, isTrailingFamily(o.Type)),
		priceOrNull(o.TrailingStep, isTrailingFamily(o.Type)),
		quantity(o.Executed),
		quantity(o.Leaves),
		quoteInfo(o.Info),
	}
	return strings.Join(fields, ",")
}

// formatOrderResponse is the single-order CSV response for `get order`:
// header line, then the one matching row.
func formatOrderResponse(o book.Order) string {
	return orderRowHeader + "\n" + formatOrderRow(o) + "\n"
}

type bookGroup struct {
	name string
	idx  orderbook.Index
}

var bookGroups = []bookGroup{
	{"BIDS", orderbook.Bid},
	{"ASKS", orderbook.Ask},
	{"BUY_STOP", orderbook.BuyStop},
	{"SELL_STOP", orderbook.SellStop},
	{"TRAILING_BUY_STOP", orderbook.TrailingBuyStop},
	{"TRAILING_SELL_STOP", orderbook.TrailingSellStop},
}

func levelType(side book.Side) string {
	if side == book.Buy {
		return "BID"
	}
	return "ASK"
}

// formatBookResponse is the CSV response for `get book`: a header line
// followed by one row per resting order across all six groups, in the
// order bids/asks/buy-stop/sell-stop/trailing-buy-stop/trailing-sell-stop,
// front-to-back within each group.
func formatBookResponse(ob *orderbook.OrderBook) string {
	var b strings.Builder
	b.WriteString(bookDumpHeader)
	b.WriteByte('\n')

	for _, g := range bookGroups {
		ob.Levels(g.idx, func(h book.LevelHandle, lvl book.Level) {
			for _, o := range ob.Orders(h, g.idx) {
				b.WriteString(g.name)
				b.WriteByte(',')
				b.WriteString(levelType(lvl.Side))
				b.WriteByte(',')
				b.WriteString(price(lvl.Price))
				b.WriteByte(',')
				b.WriteString(formatOrderRow(o))
				b.WriteByte('\n')
			}
		})
	}
	return b.String()
}
