package book

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexBestAscendingIsLowestPrice(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Sell, true) // asks: best is lowest price

	_, _, _, err := idx.Insert(store, 1, 105, Order{ID: 1, Price: 105, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = idx.Insert(store, 1, 100, Order{ID: 2, Price: 100, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, _, _, err = idx.Insert(store, 1, 110, Order{ID: 3, Price: 110, Quantity: 1, Leaves: 1})
	require.NoError(t, err)

	_, best, ok := idx.Best()
	require.True(t, ok)
	require.Equal(t, Price(100), best.Price)
}

func TestIndexBestDescendingIsHighestPrice(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Buy, false) // bids: best is highest price

	idx.Insert(store, 1, 99, Order{ID: 1, Price: 99, Quantity: 1, Leaves: 1})
	idx.Insert(store, 1, 101, Order{ID: 2, Price: 101, Quantity: 1, Leaves: 1})
	idx.Insert(store, 1, 100, Order{ID: 3, Price: 100, Quantity: 1, Leaves: 1})

	_, best, ok := idx.Best()
	require.True(t, ok)
	require.Equal(t, Price(101), best.Price)
}

func TestIndexFIFOOrderingWithinLevel(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Buy, false)

	idx.Insert(store, 1, 100, Order{ID: 1, Price: 100, Quantity: 1, Leaves: 1})
	idx.Insert(store, 1, 100, Order{ID: 2, Price: 100, Quantity: 1, Leaves: 1})
	h, _, _, _ := idx.Insert(store, 1, 100, Order{ID: 3, Price: 100, Quantity: 1, Leaves: 1})

	lvl, _ := store.Level(h)
	orders := idx.Orders(store, lvl)
	require.Len(t, orders, 3)
	require.Equal(t, OrderID(1), orders[0].ID)
	require.Equal(t, OrderID(2), orders[1].ID)
	require.Equal(t, OrderID(3), orders[2].ID)
}

func TestIndexEraseMiddlePreservesRemainingOrder(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Buy, false)

	h1, lvl, _, _ := idx.Insert(store, 1, 100, Order{ID: 1, Price: 100, Quantity: 1, Leaves: 1})
	h2, _, _, _ := idx.Insert(store, 1, 100, Order{ID: 2, Price: 100, Quantity: 1, Leaves: 1})
	h3, _, _, _ := idx.Insert(store, 1, 100, Order{ID: 3, Price: 100, Quantity: 1, Leaves: 1})
	_ = h1

	deleted, _, err := idx.Erase(store, h2)
	require.NoError(t, err)
	require.False(t, deleted)

	orders := idx.Orders(store, lvl)
	require.Len(t, orders, 2)
	require.Equal(t, OrderID(1), orders[0].ID)
	require.Equal(t, OrderID(3), orders[1].ID)
	_ = h3
}

func TestIndexEraseLastOrderDeletesLevel(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Buy, false)

	h, _, _, _ := idx.Insert(store, 1, 100, Order{ID: 1, Price: 100, Quantity: 1, Leaves: 1})

	deleted, price, err := idx.Erase(store, h)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, Price(100), price)

	_, ok := idx.Find(100)
	require.False(t, ok)
	require.True(t, idx.Empty())
}

func TestIndexAggregateVolumeTracksHiddenAndVisible(t *testing.T) {
	store := NewStore()
	idx := NewIndex(Sell, true)

	// Iceberg order: quantity 10, max visible 3.
	h, lvl, _, _ := idx.Insert(store, 1, 100, Order{ID: 1, Price: 100, Quantity: 10, Leaves: 10, MaxVisible: 3})
	_ = h

	level, ok := idx.LevelAt(lvl)
	require.True(t, ok)
	require.Equal(t, Quantity(3), level.Visible)
	require.Equal(t, Quantity(7), level.Hidden)
}
