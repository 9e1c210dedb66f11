package book

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreInsertAndGet(t *testing.T) {
	s := NewStore()
	o := Order{ID: 1, Side: Buy, Type: Limit, Price: 100, Quantity: 10, Leaves: 10}

	h, err := s.Insert(1, o)
	require.NoError(t, err)
	require.False(t, h.IsZero())

	got, ok := s.Get(h)
	require.True(t, ok)
	require.Equal(t, o, got)
	require.Equal(t, 1, s.Len())
}

func TestStoreDuplicateOrderID(t *testing.T) {
	s := NewStore()
	o := Order{ID: 1, Quantity: 1, Leaves: 1}

	_, err := s.Insert(1, o)
	require.NoError(t, err)

	_, err = s.Insert(1, o)
	require.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestStoreRemoveInvalidatesHandle(t *testing.T) {
	s := NewStore()
	h, err := s.Insert(1, Order{ID: 1, Quantity: 1, Leaves: 1})
	require.NoError(t, err)

	_, err = s.Remove(h)
	require.NoError(t, err)

	_, ok := s.Get(h)
	require.False(t, ok, "handle must be invalidated after removal")

	_, _, ok = s.GetByID(1)
	require.False(t, ok)
}

func TestStoreReusedSlotGetsNewGeneration(t *testing.T) {
	s := NewStore()
	h1, err := s.Insert(1, Order{ID: 1, Quantity: 1, Leaves: 1})
	require.NoError(t, err)
	_, err = s.Remove(h1)
	require.NoError(t, err)

	h2, err := s.Insert(1, Order{ID: 2, Quantity: 1, Leaves: 1})
	require.NoError(t, err)

	// The arena slot may be reused, but the old handle must not resolve
	// to the new order.
	_, ok := s.Get(h1)
	require.False(t, ok, "stale handle from a freed slot must not resolve")

	got, ok := s.Get(h2)
	require.True(t, ok)
	require.Equal(t, OrderID(2), got.ID)
}

func TestStoreMutate(t *testing.T) {
	s := NewStore()
	h, _ := s.Insert(1, Order{ID: 1, Quantity: 10, Leaves: 10})

	err := s.Mutate(h, func(o *Order) {
		o.Executed += 4
		o.Leaves -= 4
	})
	require.NoError(t, err)

	got, _ := s.Get(h)
	require.Equal(t, Quantity(4), got.Executed)
	require.Equal(t, Quantity(6), got.Leaves)
}

func TestStoreMutateStaleHandle(t *testing.T) {
	s := NewStore()
	h, _ := s.Insert(1, Order{ID: 1, Quantity: 1, Leaves: 1})
	s.Remove(h)

	err := s.Mutate(h, func(o *Order) {})
	require.ErrorIs(t, err, ErrStaleHandle)
}

func TestStoreLinksRoundTrip(t *testing.T) {
	s := NewStore()
	a, _ := s.Insert(1, Order{ID: 1, Quantity: 1, Leaves: 1})
	b, _ := s.Insert(1, Order{ID: 2, Quantity: 1, Leaves: 1})

	require.NoError(t, s.SetLinks(a, NoEntry, b))
	require.NoError(t, s.SetLinks(b, a, NoEntry))

	prev, next, err := s.Links(a)
	require.NoError(t, err)
	require.True(t, prev.IsZero())
	require.Equal(t, b, next)
}
