package matching

import (
	"testing"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/orderbook"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	executions []events.ExecuteOrder
	adds       []events.AddOrder
	updates    []events.UpdateOrder
	deletes    []events.DeleteOrder
}

func (r *recorder) OnAddSymbol(book.SymbolID, string)      {}
func (r *recorder) OnDeleteSymbol(book.SymbolID)           {}
func (r *recorder) OnAddOrderBook(book.BookID)              {}
func (r *recorder) OnUpdateOrderBook(book.BookID, bool)    {}
func (r *recorder) OnDeleteOrderBook(book.BookID)          {}
func (r *recorder) OnAddLevel(book.BookID, book.Level)      {}
func (r *recorder) OnUpdateLevel(book.BookID, book.Level, bool) {}
func (r *recorder) OnDeleteLevel(book.BookID, book.Level)   {}
func (r *recorder) OnAddOrder(id book.BookID, o book.Order) {
	r.adds = append(r.adds, events.AddOrder{Book: id, Order: o})
}
func (r *recorder) OnUpdateOrder(id book.BookID, o book.Order) {
	r.updates = append(r.updates, events.UpdateOrder{Book: id, Order: o})
}
func (r *recorder) OnDeleteOrder(id book.BookID, o book.Order) {
	r.deletes = append(r.deletes, events.DeleteOrder{Book: id, Order: o})
}
func (r *recorder) OnExecuteOrder(id book.BookID, o book.Order, price book.Price, qty book.Quantity) {
	r.executions = append(r.executions, events.ExecuteOrder{Book: id, Order: o, Price: price, Quantity: qty})
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e := New(events.NewQueue(rec))
	require.NoError(t, e.AddBook(1))
	e.EnableMatching()
	return e, rec
}

func TestSimpleCrossExecutesBothSides(t *testing.T) {
	e, rec := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 100, Quantity: 10, Leaves: 10}))
	e.queue.Drain()
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 4, Leaves: 4}))
	e.queue.Drain()

	require.Len(t, rec.executions, 2)
	require.Equal(t, book.OrderID(1), rec.executions[0].Order.ID)
	require.Equal(t, book.OrderID(2), rec.executions[1].Order.ID)
	require.Equal(t, book.Price(100), rec.executions[0].Price)
	require.Equal(t, book.Quantity(4), rec.executions[0].Quantity)

	ob, _ := e.Book(1)
	_, ask, ok := ob.BestAsk()
	require.True(t, ok)
	require.Equal(t, book.Quantity(6), ask.Visible)
}

func TestIOCLeftoverIsDiscardedNotRested(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 100, Quantity: 3, Leaves: 3}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, TIF: book.IOC, Price: 100, Quantity: 10, Leaves: 10}))

	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(2)
	require.False(t, ok, "IOC remainder must not rest")
	_, _, ok = ob.BestAsk()
	require.False(t, ok, "resting ask fully consumed")
}

func TestFOKRejectedWhenInsufficientLiquidity(t *testing.T) {
	e, rec := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 100, Quantity: 3, Leaves: 3}))
	err := e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, TIF: book.FOK, Price: 100, Quantity: 10, Leaves: 10})
	require.ErrorIs(t, err, ErrRejectedByTIF)

	e.queue.Drain()
	require.Empty(t, rec.executions, "rejected FOK must not execute")
	require.Len(t, rec.adds, 1, "rejected FOK never fires onAddOrder")

	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(2)
	require.False(t, ok)
}

func TestFOKFillsWhenLiquiditySufficient(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 100, Quantity: 10, Leaves: 10}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, TIF: book.FOK, Price: 100, Quantity: 10, Leaves: 10}))

	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(1)
	require.False(t, ok)
	_, _, ok = ob.GetOrder(2)
	require.False(t, ok)
}

func TestAONRestsWhenInsufficientLiquidityAvailable(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 100, Quantity: 3, Leaves: 3}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, TIF: book.AON, Price: 100, Quantity: 10, Leaves: 10}))

	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(1)
	require.True(t, ok, "AON blocked on insufficient aggregate liquidity, resting ask untouched")
	updated, _, ok := ob.GetOrder(2)
	require.True(t, ok)
	require.Equal(t, book.Quantity(10), updated.Leaves, "AON order rests untouched, no partial fill")
}

func TestAONRestingOrderNeverPartiallyFilled(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, TIF: book.AON, Price: 100, Quantity: 10, Leaves: 10}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 4, Leaves: 4}))

	ob, _ := e.Book(1)
	resting, _, ok := ob.GetOrder(1)
	require.True(t, ok)
	require.Equal(t, book.Quantity(10), resting.Leaves, "a GTC aggressor must never partially fill a resting AON order")
	require.Equal(t, book.Quantity(0), resting.Executed)

	aggressor, _, ok := ob.GetOrder(2)
	require.True(t, ok, "unmatched aggressor rests instead")
	require.Equal(t, book.Quantity(4), aggressor.Leaves)
}

func TestBuyStopActivatesWhenBestAskReachesStopPrice(t *testing.T) {
	e, rec := newTestEngine(t)
	ob, _ := e.Book(1)
	ob.SetLastTrade(48)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Sell, Type: book.Limit, Price: 50, Quantity: 5, Leaves: 5}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Stop, StopPrice: 49, Quantity: 3, Leaves: 3}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 3, Side: book.Buy, Type: book.Market, Quantity: 1, Leaves: 1}))

	last, ok := ob.LastTrade()
	require.True(t, ok)
	require.Equal(t, book.Price(50), last)

	_, _, ok = ob.GetOrder(2)
	require.False(t, ok, "stop order activated and fully matched")

	e.queue.Drain()
	var stopFilled book.Quantity
	for _, ex := range rec.executions {
		if ex.Order.ID == 2 {
			stopFilled += ex.Quantity
		}
	}
	require.Equal(t, book.Quantity(3), stopFilled)

	_, ask, ok := ob.BestAsk()
	require.True(t, ok)
	require.Equal(t, book.Quantity(1), ask.Visible, "5 resting - 1 (market) - 3 (activated stop) = 1")
}

func TestTrailingStopRepegsWithoutTriggering(t *testing.T) {
	e, _ := newTestEngine(t)
	ob, _ := e.Book(1)
	ob.SetLastTrade(100)

	require.NoError(t, e.AddOrder(1, book.Order{
		ID: 1, Side: book.Sell, Type: book.TrailingStop,
		StopPrice: 90, Quantity: 10, Leaves: 10,
		TrailingDistance: 10, TrailingStep: 5,
	}))

	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Sell, Type: book.Limit, Price: 130, Quantity: 5, Leaves: 5}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 3, Side: book.Buy, Type: book.Limit, Price: 130, Quantity: 5, Leaves: 5}))

	updated, _, ok := ob.GetOrder(1)
	require.True(t, ok, "stop is far from triggering, should still rest")
	require.Equal(t, book.Price(120), updated.StopPrice)
}

// TestTrailingStopRepegsFromArbitraryInitialStopPrice mirrors spec §8
// scenario 5 literally: an initial StopPrice that has no algebraic
// relationship to the order's trailing distance (90, with a distance of
// 100, against a reference of 100 — `StopPrice != reference - distance`),
// then a single order that pushes the opposing best quote to 120 with no
// trade involved. A repeg keyed off StopPrice instead of the order's own
// recorded reference would never move this order; the correct repeg lands
// it at 20.
func TestTrailingStopRepegsFromArbitraryInitialStopPrice(t *testing.T) {
	e, _ := newTestEngine(t)
	ob, _ := e.Book(1)
	ob.SetLastTrade(100)

	require.NoError(t, e.AddOrder(1, book.Order{
		ID: 1, Side: book.Sell, Type: book.TrailingStop,
		StopPrice: 90, Quantity: 10, Leaves: 10,
		TrailingDistance: 100, TrailingStep: 10,
	}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, Price: 120, Quantity: 5, Leaves: 5}))

	updated, _, ok := ob.GetOrder(1)
	require.True(t, ok)
	require.Equal(t, book.Price(20), updated.StopPrice, "repeg must use the order's own recorded reference, not StopPrice+TrailingDistance")
}

func TestDeleteOrderByInfoPicksLowestID(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 5, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 1, Leaves: 1, Info: "dup"}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 3, Side: book.Buy, Type: book.Limit, Price: 99, Quantity: 1, Leaves: 1, Info: "dup"}))

	require.NoError(t, e.DeleteOrderByInfo(1, "dup"))

	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(3)
	require.False(t, ok, "lowest id wins the tie-break")
	_, _, ok = ob.GetOrder(5)
	require.True(t, ok)
}

func TestModifyLosesPriorityAtSamePrice(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 5, Leaves: 5}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 5, Leaves: 5}))

	require.NoError(t, e.ModifyOrder(1, 1, 100, 5))

	ob, _ := e.Book(1)
	h, _, ok := ob.BestBid()
	require.True(t, ok)
	orders := ob.Orders(h, orderbook.Bid)
	require.Len(t, orders, 2)
	require.Equal(t, book.OrderID(2), orders[0].ID, "order 1 moved behind order 2 after modify")
}

func TestMitigateShrinkKeepsPriority(t *testing.T) {
	e, _ := newTestEngine(t)

	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 5, Leaves: 5}))
	require.NoError(t, e.AddOrder(1, book.Order{ID: 2, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 5, Leaves: 5}))

	require.NoError(t, e.MitigateOrder(1, 1, 100, 3))

	ob, _ := e.Book(1)
	h, _, ok := ob.BestBid()
	require.True(t, ok)
	orders := ob.Orders(h, orderbook.Bid)
	require.Len(t, orders, 2)
	require.Equal(t, book.OrderID(1), orders[0].ID, "mitigate at same price/smaller qty keeps priority")
	require.Equal(t, book.Quantity(3), orders[0].Leaves)
}

func TestReduceToZeroDeletesOrder(t *testing.T) {
	e, rec := newTestEngine(t)
	require.NoError(t, e.AddOrder(1, book.Order{ID: 1, Side: book.Buy, Type: book.Limit, Price: 100, Quantity: 5, Leaves: 5}))

	require.NoError(t, e.ReduceOrder(1, 1, 5))
	e.queue.Drain()

	require.Len(t, rec.deletes, 1)
	ob, _ := e.Book(1)
	_, _, ok := ob.GetOrder(1)
	require.False(t, ok)
}
