package book

// PriceLevelIndex is the ordered price->Level map of spec §4.A: O(log n)
// find/insert/erase via the underlying treap, best (front) level found by
// walking to the treap's extreme node (expected O(log n); it is not
// cached, so access is not O(1)), and O(1) push-back/erase of an order within its Level's
// intrusive FIFO (delegated to the Store that owns the order records).
type PriceLevelIndex struct {
	side      Side
	ascending bool // true: best() is the lowest price (asks, buy-stop, trailing-buy-stop)

	tree   treap
	levels []levelSlot
	free   []uint32
}

type levelSlot struct {
	gen   uint32
	alive bool
	level Level
}

// NewIndex creates an empty index. ascending controls iteration and best()
// direction: true for asks/buy-stop/trailing-buy-stop (closest-to-trigger
// is the lowest price), false for bids/sell-stop/trailing-sell-stop.
func NewIndex(side Side, ascending bool) *PriceLevelIndex {
	return &PriceLevelIndex{side: side, ascending: ascending}
}

func (x *PriceLevelIndex) alloc() uint32 {
	if n := len(x.free); n > 0 {
		idx := x.free[n-1]
		x.free = x.free[:n-1]
		return idx
	}
	x.levels = append(x.levels, levelSlot{})
	return uint32(len(x.levels) - 1)
}

func (x *PriceLevelIndex) at(h LevelHandle) (*levelSlot, bool) {
	if int(h.idx) >= len(x.levels) {
		return nil, false
	}
	sl := &x.levels[h.idx]
	if !sl.alive || sl.gen != h.gen {
		return nil, false
	}
	return sl, true
}

// LevelAt returns a copy of the level named by h.
func (x *PriceLevelIndex) LevelAt(h LevelHandle) (Level, bool) {
	sl, ok := x.at(h)
	if !ok {
		return Level{}, false
	}
	return sl.level, true
}

// Find returns the handle of the level resting at price, if any.
func (x *PriceLevelIndex) Find(price Price) (LevelHandle, bool) {
	return x.tree.find(price)
}

// getOrCreate returns the level at price, creating an empty one (and
// reporting created=true) if none exists yet.
func (x *PriceLevelIndex) getOrCreate(price Price) (LevelHandle, bool) {
	if h, ok := x.tree.find(price); ok {
		return h, false
	}
	idx := x.alloc()
	gen := x.levels[idx].gen + 1
	x.levels[idx] = levelSlot{gen: gen, alive: true, level: Level{Side: x.side, Price: price}}
	h := LevelHandle{idx: idx, gen: gen}
	x.tree.insert(price, h)
	return h, true
}

// Best returns the front (closest to crossing, or closest to trigger for a
// stop index) level, if any.
func (x *PriceLevelIndex) Best() (LevelHandle, Level, bool) {
	var found LevelHandle
	var ok bool
	visit := func(_ Price, h LevelHandle) bool {
		found, ok = h, true
		return false
	}
	if x.ascending {
		x.tree.ascend(visit)
	} else {
		x.tree.descend(visit)
	}
	if !ok {
		return NoLevel, Level{}, false
	}
	lvl, _ := x.LevelAt(found)
	return found, lvl, true
}

// Insert appends order to the FIFO at price, creating the level if
// necessary. Returns the order's entry handle, the level handle, and
// whether the level was newly created (so callers can fire onAddLevel vs
// onUpdateLevel).
func (x *PriceLevelIndex) Insert(store *Store, b BookID, price Price, order Order) (EntryHandle, LevelHandle, bool, error) {
	lvlHandle, created := x.getOrCreate(price)
	entry, err := store.Insert(b, order)
	if err != nil {
		if created {
			x.deleteLevel(lvlHandle)
		}
		return NoEntry, NoLevel, false, err
	}
	sl, _ := x.at(lvlHandle)
	if sl.level.Count == 0 {
		sl.level.head = entry
		sl.level.tail = entry
		store.SetLinks(entry, NoEntry, NoEntry)
	} else {
		tail := sl.level.tail
		tailPrev, _, _ := store.Links(tail)
		store.SetLinks(tail, tailPrev, entry)
		store.SetLinks(entry, tail, NoEntry)
		sl.level.tail = entry
	}
	sl.level.Count++
	sl.level.Visible += order.VisibleLeaves()
	sl.level.Hidden += order.Leaves - order.VisibleLeaves()
	store.SetLevel(entry, lvlHandle)
	return entry, lvlHandle, created, nil
}

// Erase removes the order named by entry from its level's FIFO, deleting
// the level (and reporting levelDeleted=true) if it becomes empty.
func (x *PriceLevelIndex) Erase(store *Store, entry EntryHandle) (bool, Price, error) {
	lvlHandle, ok := store.Level(entry)
	if !ok {
		return false, 0, ErrStaleHandle
	}
	sl, ok := x.at(lvlHandle)
	if !ok {
		return false, 0, ErrStaleHandle
	}
	order, ok := store.Get(entry)
	if !ok {
		return false, 0, ErrStaleHandle
	}
	prev, next, _ := store.Links(entry)
	if prev.IsZero() {
		sl.level.head = next
	} else {
		prevPrev, _, _ := store.Links(prev)
		store.SetLinks(prev, prevPrev, next)
	}
	if next.IsZero() {
		sl.level.tail = prev
	} else {
		_, nextNext, _ := store.Links(next)
		store.SetLinks(next, prev, nextNext)
	}
	sl.level.Count--
	sl.level.Visible -= order.VisibleLeaves()
	sl.level.Hidden -= order.Leaves - order.VisibleLeaves()

	price := sl.level.Price
	if sl.level.Count == 0 {
		x.deleteLevel(lvlHandle)
		return true, price, nil
	}
	return false, price, nil
}

func (x *PriceLevelIndex) deleteLevel(h LevelHandle) {
	sl, ok := x.at(h)
	if !ok {
		return
	}
	x.tree.erase(sl.level.Price)
	x.levels[h.idx].alive = false
	x.free = append(x.free, h.idx)
}

// Levels walks every live level in front-to-back (closest-to-crossing
// first) order.
func (x *PriceLevelIndex) Levels(fn func(LevelHandle, Level)) {
	visit := func(_ Price, h LevelHandle) bool {
		lvl, ok := x.LevelAt(h)
		if ok {
			fn(h, lvl)
		}
		return true
	}
	if x.ascending {
		x.tree.ascend(visit)
	} else {
		x.tree.descend(visit)
	}
}

// FrontEntry returns the handle of the first (longest-resident) order at a
// level, for callers that need to mutate/erase it directly (the matching
// loop always trades against the front of the best level).
func (x *PriceLevelIndex) FrontEntry(h LevelHandle) (EntryHandle, bool) {
	lvl, ok := x.LevelAt(h)
	if !ok || lvl.head.IsZero() {
		return NoEntry, false
	}
	return lvl.head, true
}

// Orders walks the orders resident at a level in arrival (FIFO) order.
func (x *PriceLevelIndex) Orders(store *Store, h LevelHandle) []Order {
	lvl, ok := x.LevelAt(h)
	if !ok {
		return nil
	}
	var out []Order
	for cur := lvl.head; !cur.IsZero(); {
		order, ok := store.Get(cur)
		if !ok {
			break
		}
		out = append(out, order)
		_, next, _ := store.Links(cur)
		cur = next
	}
	return out
}

// RefreshVisible recomputes a level's aggregate visible/hidden volume after
// an in-place order mutation (e.g. a partial fill refreshing an iceberg's
// display). before/after are the order's visible/hidden split prior to and
// following the mutation.
func (x *PriceLevelIndex) RefreshVisible(h LevelHandle, beforeVisible, beforeHidden, afterVisible, afterHidden Quantity) {
	sl, ok := x.at(h)
	if !ok {
		return
	}
	sl.level.Visible += afterVisible - beforeVisible
	sl.level.Hidden += afterHidden - beforeHidden
}

// Empty reports whether the index has no resting levels.
func (x *PriceLevelIndex) Empty() bool {
	_, _, ok := x.Best()
	return !ok
}
