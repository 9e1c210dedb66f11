package book

import "github.com/pkg/errors"

// EntryHandle and LevelHandle are stable (index, generation) references
// into the Store's and Index's arenas, per spec §9's design note: a raw
// pointer into a Go slice would be invalidated silently by a reallocating
// append, and a bare index would suffer ABA if the slot is freed and
// reused. Pairing the index with a generation counter makes a stale
// reference a checked error (ErrStaleHandle) instead of either panic on
// bounds or silent corruption.
type EntryHandle struct {
	idx uint32
	gen uint32
}

// LevelHandle is the same scheme, scoped to a PriceLevelIndex's level arena.
type LevelHandle struct {
	idx uint32
	gen uint32
}

// Zero values are never valid handles; NoEntry/NoLevel make that explicit
// at call sites instead of relying on a zero (idx:0, gen:0) handle, which
// a freshly-allocated slot could otherwise collide with.
var (
	NoEntry EntryHandle
	NoLevel LevelHandle
)

func (h EntryHandle) IsZero() bool { return h == NoEntry }
func (h LevelHandle) IsZero() bool { return h == NoLevel }

// ErrStaleHandle is returned when a handle's generation no longer matches
// the arena slot it names, i.e. the entry or level it pointed to has since
// been freed and (possibly) reused.
var ErrStaleHandle = errors.New("book: stale handle")

// ErrDuplicateOrderID is returned by Store.Insert when the id is already present.
var ErrDuplicateOrderID = errors.New("book: duplicate order id")

// ErrUnknownOrder is returned when an order id has no live entry.
var ErrUnknownOrder = errors.New("book: unknown order")
