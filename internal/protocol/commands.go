package protocol

import (
	"strconv"
	"strings"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/metrics"
	"github.com/pkg/errors"
)

var errNoCurrentBook = errors.New("protocol: no book selected, issue `add book` first")

var errInvalidQuantity = errors.New("protocol: new quantity must be positive and at least the order's executed quantity")

// validateNewQuantity rejects a modify/mitigate quantity that would leave
// the order with leaves <= 0 (spec §3: "for a resting order in the book,
// leaves > 0"). orderbook.Modify (and Mitigate's reprice fallback) compute
// leaves as newQuantity - executed with no floor of their own, so the dispatcher
// checks it before ever reaching the book.
func (d *Dispatcher) validateNewQuantity(id book.OrderID, newQuantity book.Quantity) error {
	order, ok := d.engine.GetOrder(d.currentBook, id)
	if !ok {
		return errUnknownBook
	}
	if newQuantity <= 0 || newQuantity <= order.Executed {
		return errInvalidQuantity
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseOrderID(s string) (book.OrderID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return book.OrderID(v), err
}

func parsePrice(s string) (book.Price, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return book.Price(v), err
}

func parseQuantity(s string) (book.Quantity, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return book.Quantity(v), err
}

// joinFrom joins the remaining tokens starting at i, the convention every
// command grammar in spec §4.G uses for its trailing `info` field.
func joinFrom(f []string, i int) string {
	if i >= len(f) {
		return ""
	}
	return strings.Join(f[i:], " ")
}

func (d *Dispatcher) cmdAddSymbol(f []string) (string, error) {
	if len(f) < 4 {
		return "", errInvalidCommand
	}
	id, err := parseUint32(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.engine.AddSymbol(book.SymbolID(id), joinFrom(f, 3)); err != nil {
		return "", err
	}
	return OKResponse, nil
}

func (d *Dispatcher) cmdDeleteSymbol(f []string) (string, error) {
	if len(f) != 3 {
		return "", errInvalidCommand
	}
	id, err := parseUint32(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.engine.DeleteSymbol(book.SymbolID(id)); err != nil {
		return "", err
	}
	return OKResponse, nil
}

func (d *Dispatcher) cmdAddBook(f []string) (string, error) {
	if len(f) != 3 {
		return "", errInvalidCommand
	}
	id, err := parseUint32(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	bookID := book.BookID(id)
	if err := d.engine.AddBook(bookID); err != nil {
		return "", err
	}
	d.currentBook = bookID
	return OKResponse, nil
}

func (d *Dispatcher) cmdDeleteBook(f []string) (string, error) {
	if len(f) != 3 {
		return "", errInvalidCommand
	}
	id, err := parseUint32(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.engine.DeleteBook(book.BookID(id)); err != nil {
		return "", err
	}
	return OKResponse, nil
}

func (d *Dispatcher) cmdGetBook(f []string) (string, error) {
	if len(f) != 3 {
		return "", errInvalidCommand
	}
	id, err := parseUint32(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	ob, ok := d.engine.Book(book.BookID(id))
	if !ok {
		return "", errUnknownBook
	}
	return formatBookResponse(ob), nil
}

var errUnknownBook = errors.New("protocol: unknown book")

func (d *Dispatcher) cmdGetOrder(f []string) (string, error) {
	if len(f) != 3 {
		return "", errInvalidCommand
	}
	id, err := parseOrderID(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	order, ok := d.engine.GetOrder(d.currentBook, id)
	if !ok {
		return "", errUnknownBook
	}
	return formatOrderResponse(order), nil
}

// cmdAddMarket handles `add market <buy|sell> <qty> <info>`.
func (d *Dispatcher) cmdAddMarket(f []string) (string, error) {
	if len(f) < 5 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.Market, TIF: book.GTC,
		Quantity: qty, Leaves: qty, Info: joinFrom(f, 4),
	}
	return d.submit(order)
}

// cmdAddSlippageMarket handles `add slippage market <buy|sell> <qty> <slippage> <info>`.
func (d *Dispatcher) cmdAddSlippageMarket(f []string) (string, error) {
	if len(f) < 6 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	slippage, err := parsePrice(f[5])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.Market, TIF: book.GTC,
		Quantity: qty, Leaves: qty, Slippage: slippage, Info: joinFrom(f, 6),
	}
	return d.submit(order)
}

// cmdAddLimit handles every plain-limit grammar form: `add limit ...` (prefixLen
// 2) and `add {ioc|fok|aon} limit ...` (prefixLen 3, tif set accordingly).
func (d *Dispatcher) cmdAddLimit(f []string, prefixLen int, tif book.TimeInForce) (string, error) {
	if len(f) < prefixLen+4 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[prefixLen])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[prefixLen+1])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[prefixLen+2])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.Limit, TIF: tif,
		Price: price, Quantity: qty, Leaves: qty, Info: joinFrom(f, prefixLen+3),
	}
	return d.submit(order)
}

// cmdAddStop handles `add stop <buy|sell> <stop_price> <qty> <info>`.
func (d *Dispatcher) cmdAddStop(f []string) (string, error) {
	if len(f) < 6 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	stopPrice, err := parsePrice(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.Stop, TIF: book.GTC,
		StopPrice: stopPrice, Quantity: qty, Leaves: qty, Info: joinFrom(f, 5),
	}
	return d.submit(order)
}

// cmdAddStopLimit handles `add stop-limit <buy|sell> <stop_price> <price> <qty> <info>`.
func (d *Dispatcher) cmdAddStopLimit(f []string) (string, error) {
	if len(f) < 7 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	stopPrice, err := parsePrice(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[5])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.StopLimit, TIF: book.GTC,
		StopPrice: stopPrice, Price: price, Quantity: qty, Leaves: qty, Info: joinFrom(f, 6),
	}
	return d.submit(order)
}

// cmdAddTrailingStop handles:
// `add trailing stop <buy|sell> <stop_price> <qty> <trailing_distance> <trailing_step> <info>`.
func (d *Dispatcher) cmdAddTrailingStop(f []string) (string, error) {
	if len(f) < 8 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	stopPrice, err := parsePrice(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[5])
	if err != nil {
		return "", errInvalidCommand
	}
	distance, err := parsePrice(f[6])
	if err != nil {
		return "", errInvalidCommand
	}
	step, err := parsePrice(f[7])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.TrailingStop, TIF: book.GTC,
		StopPrice: stopPrice, Quantity: qty, Leaves: qty,
		TrailingDistance: distance, TrailingStep: step, Info: joinFrom(f, 8),
	}
	return d.submit(order)
}

// cmdAddTrailingStopLimit handles:
// `add trailing stop-limit <buy|sell> <stop_price> <price> <qty> <trailing_distance> <trailing_step> <info>`.
func (d *Dispatcher) cmdAddTrailingStopLimit(f []string) (string, error) {
	if len(f) < 9 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	side, err := book.SideFromString(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	stopPrice, err := parsePrice(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[5])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[6])
	if err != nil {
		return "", errInvalidCommand
	}
	distance, err := parsePrice(f[7])
	if err != nil {
		return "", errInvalidCommand
	}
	step, err := parsePrice(f[8])
	if err != nil {
		return "", errInvalidCommand
	}
	id := d.allocID()
	order := book.Order{
		ID: id, SymbolID: book.SymbolID(d.currentBook), Side: side, Type: book.TrailingStopLimit, TIF: book.GTC,
		StopPrice: stopPrice, Price: price, Quantity: qty, Leaves: qty,
		TrailingDistance: distance, TrailingStep: step, Info: joinFrom(f, 9),
	}
	return d.submit(order)
}

// submit calls AddOrder against the current book and renders the assigned
// id as the response on success (spec §4.G: "for add *, the assigned id").
func (d *Dispatcher) submit(order book.Order) (string, error) {
	if err := d.engine.AddOrder(d.currentBook, order); err != nil {
		return "", err
	}
	metrics.OrdersMatched.WithLabelValues(order.Side.String()).Inc()
	return idString(order.ID), nil
}

func (d *Dispatcher) cmdReduceOrder(f []string) (string, error) {
	if len(f) != 4 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	id, err := parseOrderID(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.engine.ReduceOrder(d.currentBook, id, qty); err != nil {
		return "", err
	}
	return OKResponse, nil
}

func (d *Dispatcher) cmdModifyOrder(f []string) (string, error) {
	if len(f) != 5 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	id, err := parseOrderID(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.validateNewQuantity(id, qty); err != nil {
		return "", err
	}
	if err := d.engine.ModifyOrder(d.currentBook, id, price, qty); err != nil {
		return "", err
	}
	return OKResponse, nil
}

func (d *Dispatcher) cmdMitigateOrder(f []string) (string, error) {
	if len(f) != 5 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	id, err := parseOrderID(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	if err := d.validateNewQuantity(id, qty); err != nil {
		return "", err
	}
	if err := d.engine.MitigateOrder(d.currentBook, id, price, qty); err != nil {
		return "", err
	}
	return OKResponse, nil
}

// cmdReplaceOrder handles `replace order <id> <new_id> <new_price> <new_qty>`.
// Open Question (c) (DESIGN.md): the replacement inherits the original
// order's Info and Side/Type/TIF, since the grammar has no field for any
// of those — only id, new_id, new_price and new_qty are parsed.
func (d *Dispatcher) cmdReplaceOrder(f []string) (string, error) {
	if len(f) != 6 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	id, err := parseOrderID(f[2])
	if err != nil {
		return "", errInvalidCommand
	}
	newID, err := parseOrderID(f[3])
	if err != nil {
		return "", errInvalidCommand
	}
	price, err := parsePrice(f[4])
	if err != nil {
		return "", errInvalidCommand
	}
	qty, err := parseQuantity(f[5])
	if err != nil {
		return "", errInvalidCommand
	}
	original, ok := d.engine.GetOrder(d.currentBook, id)
	if !ok {
		return "", errUnknownBook
	}
	replacement := original
	replacement.ID = newID
	replacement.Price = price
	replacement.Quantity = qty
	replacement.Leaves = qty
	replacement.Executed = 0
	if err := d.engine.ReplaceOrder(d.currentBook, id, replacement); err != nil {
		return "", err
	}
	if newID > d.nextOrderID {
		d.nextOrderID = newID
	}
	return idString(newID), nil
}

func (d *Dispatcher) cmdDeleteOrder(f []string) (string, error) {
	if len(f) < 3 {
		return "", errInvalidCommand
	}
	if d.currentBook == 0 {
		return "", errNoCurrentBook
	}
	if err := d.engine.DeleteOrderByInfo(d.currentBook, joinFrom(f, 2)); err != nil {
		return "", err
	}
	return OKResponse, nil
}
