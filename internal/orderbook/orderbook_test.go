package orderbook

import (
	"testing"

	"github.com/ejyy/matchd/internal/book"
	"github.com/stretchr/testify/require"
)

func TestAddLevelOrderBestBidAsk(t *testing.T) {
	ob := New(1)

	_, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Side: book.Buy, Price: 99, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Bid, book.Order{ID: 2, Side: book.Buy, Price: 101, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Ask, book.Order{ID: 3, Side: book.Sell, Price: 110, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Ask, book.Order{ID: 4, Side: book.Sell, Price: 105, Quantity: 1, Leaves: 1})
	require.NoError(t, err)

	_, bid, ok := ob.BestBid()
	require.True(t, ok)
	require.Equal(t, book.Price(101), bid.Price)

	_, ask, ok := ob.BestAsk()
	require.True(t, ok)
	require.Equal(t, book.Price(105), ask.Price)
}

func TestReduceToZeroDeletesOrder(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 10, Leaves: 10})
	require.NoError(t, err)

	_, deleted, err := ob.Reduce(Bid, h, 10)
	require.NoError(t, err)
	require.True(t, deleted)

	_, _, ok := ob.GetOrder(1)
	require.False(t, ok)
}

func TestReducePartialLeavesRemainder(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 10, Leaves: 10})
	require.NoError(t, err)

	updated, deleted, err := ob.Reduce(Bid, h, 4)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, book.Quantity(6), updated.Leaves)
	require.Equal(t, book.Quantity(4), updated.Executed)
}

func TestModifyPriceChangeMovesLevelAndLosesPriority(t *testing.T) {
	ob := New(1)
	h1, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Bid, book.Order{ID: 2, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)

	newHandle, newLevel, created, levelDeleted, err := ob.Modify(Bid, h1, 102, 5)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, levelDeleted) // order 2 still rests at 100

	_, bid, ok := ob.BestBid()
	require.True(t, ok)
	require.Equal(t, book.Price(102), bid.Price)

	updated, _, _ := ob.GetOrder(1)
	_ = updated
	orders := ob.Orders(newLevel, Bid)
	require.Len(t, orders, 1)
	require.Equal(t, book.OrderID(1), orders[0].ID)
	require.False(t, newHandle.IsZero())
}

func TestMitigateShrinksWithoutMovingPriority(t *testing.T) {
	ob := New(1)
	h, lvl, _, err := ob.AddLevelOrder(Ask, book.Order{ID: 1, Price: 100, Quantity: 10, Leaves: 10, MaxVisible: 4})
	require.NoError(t, err)

	level, ok := ob.indexFor(Ask).LevelAt(lvl)
	require.True(t, ok)
	require.Equal(t, book.Quantity(4), level.Visible)
	require.Equal(t, book.Quantity(6), level.Hidden)

	sameHandle, _, created, deleted, err := ob.Mitigate(Ask, h, 100, 3)
	require.NoError(t, err)
	require.False(t, deleted)
	require.False(t, created)
	require.Equal(t, h, sameHandle) // same price, shrink only: priority preserved

	updated, _, ok := ob.GetOrder(1)
	require.True(t, ok)
	require.Equal(t, book.Quantity(3), updated.Leaves)

	level, ok = ob.indexFor(Ask).LevelAt(lvl)
	require.True(t, ok)
	require.Equal(t, book.Quantity(3), level.Visible)
	require.Equal(t, book.Quantity(0), level.Hidden)
}

func TestMitigateToZeroDeletes(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Ask, book.Order{ID: 1, Price: 100, Quantity: 10, Leaves: 10})
	require.NoError(t, err)

	_, _, _, deleted, err := ob.Mitigate(Ask, h, 100, 0)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestMitigatePriceChangeFallsBackToModify(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Bid, book.Order{ID: 2, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)

	newHandle, newLevel, created, _, err := ob.Mitigate(Bid, h, 102, 5)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, h, newHandle)

	orders := ob.Orders(newLevel, Bid)
	require.Len(t, orders, 1)
	require.Equal(t, book.OrderID(1), orders[0].ID)
}

func TestMitigateQuantityIncreaseFallsBackToModify(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)

	newHandle, _, created, levelDeleted, err := ob.Mitigate(Bid, h, 100, 8)
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, levelDeleted)

	updated, _, ok := ob.GetOrder(1)
	require.True(t, ok)
	require.Equal(t, book.Quantity(8), updated.Leaves)
	require.NotEqual(t, h, newHandle)
}

func TestReplaceAssignsFreshHandle(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 5, Leaves: 5})
	require.NoError(t, err)

	newHandle, _, _, _, err := ob.Replace(Bid, h, book.Order{ID: 2, Price: 101, Quantity: 7, Leaves: 7})
	require.NoError(t, err)

	_, _, ok := ob.GetOrder(1)
	require.False(t, ok)

	replaced, rh, ok := ob.GetOrder(2)
	require.True(t, ok)
	require.Equal(t, book.Price(101), replaced.Price)
	require.Equal(t, newHandle, rh)
}

func TestLastTradeAndTrailingAnchor(t *testing.T) {
	ob := New(1)
	_, ok := ob.LastTrade()
	require.False(t, ok)

	ob.SetLastTrade(150)
	p, ok := ob.LastTrade()
	require.True(t, ok)
	require.Equal(t, book.Price(150), p)

	ob.SetTrailingAnchor(150)
	anchor, ok := ob.TrailingAnchor()
	require.True(t, ok)
	require.Equal(t, book.Price(150), anchor)
}

func TestStopIndexesOrderCorrectly(t *testing.T) {
	ob := New(1)
	// Buy-stop: best is lowest trigger above market. Stop indexes key on
	// StopPrice, not Price (Price is the post-activation limit price).
	_, _, _, err := ob.AddLevelOrder(BuyStop, book.Order{ID: 1, StopPrice: 120, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(BuyStop, book.Order{ID: 2, StopPrice: 115, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, bs, ok := ob.BestBuyStop()
	require.True(t, ok)
	require.Equal(t, book.Price(115), bs.Price)

	// Sell-stop: best is highest trigger below market.
	_, _, _, err = ob.AddLevelOrder(SellStop, book.Order{ID: 3, StopPrice: 80, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(SellStop, book.Order{ID: 4, StopPrice: 90, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, ss, ok := ob.BestSellStop()
	require.True(t, ok)
	require.Equal(t, book.Price(90), ss.Price)
}

func TestRepegStopReinsertsPreservingQuantity(t *testing.T) {
	ob := New(1)
	h, _, _, err := ob.AddLevelOrder(TrailingSellStop, book.Order{
		ID: 1, StopPrice: 20, Quantity: 10, Leaves: 10, TrailingDistance: 100, TrailingStep: 10,
	})
	require.NoError(t, err)

	newHandle, newLevel, created, levelDeleted, err := ob.RepegStop(TrailingSellStop, h, 20)
	require.NoError(t, err)
	require.True(t, levelDeleted) // the only order at the old level moved off it
	require.True(t, created)      // reinserted at a fresh level, even at the same price

	updated, _, ok := ob.GetOrder(1)
	require.True(t, ok)
	require.Equal(t, book.Price(20), updated.StopPrice)
	require.Equal(t, book.Quantity(10), updated.Leaves)
	require.False(t, newHandle.IsZero())
	_ = newLevel
}

func TestFrontOrderReturnsLongestResident(t *testing.T) {
	ob := New(1)
	_, lvl, _, err := ob.AddLevelOrder(Bid, book.Order{ID: 1, Price: 100, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = ob.AddLevelOrder(Bid, book.Order{ID: 2, Price: 100, Quantity: 1, Leaves: 1})
	require.NoError(t, err)

	_, front, ok := ob.FrontOrder(Bid, lvl)
	require.True(t, ok)
	require.Equal(t, book.OrderID(1), front.ID)
}
