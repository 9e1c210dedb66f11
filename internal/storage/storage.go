// Package storage implements the Durability Adapter (spec §4.F): a
// sqlite-backed events.Handler that makes (command -> in-memory mutation ->
// persisted mutation) atomic from the client's perspective, plus the
// startup replay path that rebuilds the in-memory book from the database.
package storage

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                 INTEGER PRIMARY KEY,
	symbol_id          INTEGER NOT NULL,
	type               INTEGER NOT NULL,
	side               INTEGER NOT NULL,
	price              INTEGER NOT NULL,
	stop_price         INTEGER NOT NULL,
	quantity           INTEGER NOT NULL,
	tif                INTEGER NOT NULL,
	max_visible        INTEGER NOT NULL,
	slippage           INTEGER NOT NULL,
	trailing_distance  INTEGER NOT NULL,
	trailing_step      INTEGER NOT NULL,
	executed_quantity  INTEGER NOT NULL,
	leaves_quantity    INTEGER NOT NULL,
	info               TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS latest (id INTEGER NOT NULL);
`

// Store is the sqlite-backed Durability Adapter. It implements
// events.Handler so it can be registered directly on an events.Queue; every
// callback it receives outside of a replay is persisted, per spec §4.F's
// protocol.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	replaying atomic.Bool
	pending   map[book.OrderID]pendingRow
}

type pendingRow struct {
	order   book.Order
	deleted bool
}

// Open creates (or attaches to) the sqlite database at path and ensures its
// schema exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithMessage(err, "storage: open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "storage: create schema")
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM latest`).Scan(&count); err != nil {
		db.Close()
		return nil, errors.WithMessage(err, "storage: inspect latest table")
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO latest(id) VALUES (0)`); err != nil {
			db.Close()
			return nil, errors.WithMessage(err, "storage: seed latest table")
		}
	}
	return &Store{db: db, logger: logger, pending: make(map[book.OrderID]pendingRow)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// LatestID returns the highest order id ever persisted, used to seed the
// dispatcher's in-memory id counter on startup (spec §4.F "latest.id is
// loaded to seed the id counter").
func (s *Store) LatestID(ctx context.Context) (book.OrderID, error) {
	var id uint64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM latest LIMIT 1`).Scan(&id)
	if err != nil {
		return 0, errors.WithMessage(err, "storage: read latest id")
	}
	return book.OrderID(id), nil
}

// LoadOrders returns every persisted order row, for startup replay (spec
// §4.F "all rows in orders are replayed through AddOrder").
func (s *Store) LoadOrders(ctx context.Context) ([]book.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol_id, type, side, price, stop_price, quantity, tif,
		       max_visible, slippage, trailing_distance, trailing_step,
		       executed_quantity, leaves_quantity, info
		FROM orders ORDER BY id ASC`)
	if err != nil {
		return nil, errors.WithMessage(err, "storage: query orders")
	}
	defer rows.Close()

	var out []book.Order
	for rows.Next() {
		var o book.Order
		var typ, side, tif uint8
		if err := rows.Scan(&o.ID, &o.SymbolID, &typ, &side, &o.Price, &o.StopPrice,
			&o.Quantity, &tif, &o.MaxVisible, &o.Slippage, &o.TrailingDistance,
			&o.TrailingStep, &o.Executed, &o.Leaves, &o.Info); err != nil {
			return nil, errors.WithMessage(err, "storage: scan order row")
		}
		o.Type = book.OrderType(typ)
		o.Side = book.Side(side)
		o.TIF = book.TimeInForce(tif)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithMessage(err, "storage: iterate order rows")
	}
	return out, nil
}

// Replaying reports whether the store is currently suppressing persistence
// side effects for a startup replay pass.
func (s *Store) Replaying() bool { return s.replaying.Load() }

// WithReplay runs fn with persistence side effects suppressed (spec §4.F:
// replay "suppresses persistence side effects while still allowing the
// engine to rebuild levels and reconcile any last-state fields"), then
// restores normal persistence regardless of fn's outcome.
func (s *Store) WithReplay(fn func() error) error {
	s.replaying.Store(true)
	defer s.replaying.Store(false)
	return fn()
}

// OnAddOrder persists a newly admitted order in one atomic transaction that
// also advances latest.id, per spec §4.F step 3. Failure is logged; the
// adapter never returns an error to the engine (Handler's contract is
// void), matching the spec's "caller is expected to detect this via timeout
// or empty response."
func (s *Store) OnAddOrder(_ book.BookID, order book.Order) {
	if s.replaying.Load() {
		return
	}
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("storage: begin add-order transaction", zap.Error(err), zap.Uint64("order_id", uint64(order.ID)))
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE latest SET id = ?`, uint64(order.ID)); err != nil {
		s.logger.Error("storage: update latest id", zap.Error(err), zap.Uint64("order_id", uint64(order.ID)))
		return
	}
	if _, err := tx.Exec(insertOrderSQL,
		order.ID, order.SymbolID, order.Type, order.Side, order.Price, order.StopPrice,
		order.Quantity, order.TIF, order.MaxVisible, order.Slippage, order.TrailingDistance,
		order.TrailingStep, order.Executed, order.Leaves, order.Info); err != nil {
		s.logger.Error("storage: insert order row", zap.Error(err), zap.Uint64("order_id", uint64(order.ID)))
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("storage: commit add-order transaction", zap.Error(err), zap.Uint64("order_id", uint64(order.ID)))
	}
}

const insertOrderSQL = `
INSERT INTO orders (id, symbol_id, type, side, price, stop_price, quantity, tif,
                     max_visible, slippage, trailing_distance, trailing_step,
                     executed_quantity, leaves_quantity, info)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// OnUpdateOrder queues the order's current state to be persisted the next
// time Flush runs (spec §4.F step 4: execute/update callbacks queue an
// UPDATE, committed together at end of request).
func (s *Store) OnUpdateOrder(_ book.BookID, order book.Order) {
	if s.replaying.Load() {
		return
	}
	s.pending[order.ID] = pendingRow{order: order}
}

// OnExecuteOrder queues the order's post-fill state the same way OnUpdateOrder does.
func (s *Store) OnExecuteOrder(_ book.BookID, order book.Order, _ book.Price, _ book.Quantity) {
	if s.replaying.Load() {
		return
	}
	s.pending[order.ID] = pendingRow{order: order}
}

// OnDeleteOrder queues a row deletion for the next Flush.
func (s *Store) OnDeleteOrder(_ book.BookID, order book.Order) {
	if s.replaying.Load() {
		return
	}
	s.pending[order.ID] = pendingRow{order: order, deleted: true}
}

// Flush commits every pending update/delete queued since the last Flush in
// a single transaction (spec §4.F step 4). The protocol dispatcher calls
// this exactly once per request, after draining the engine's event queue.
func (s *Store) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithMessage(err, "storage: begin flush transaction")
	}
	defer tx.Rollback()

	for id, row := range s.pending {
		if row.deleted {
			if _, err := tx.Exec(`DELETE FROM orders WHERE id = ?`, uint64(id)); err != nil {
				return errors.WithMessagef(err, "storage: delete order %d", id)
			}
			continue
		}
		o := row.order
		if _, err := tx.Exec(`
			UPDATE orders SET type = ?, price = ?, stop_price = ?, quantity = ?,
			                   executed_quantity = ?, leaves_quantity = ?
			WHERE id = ?`,
			o.Type, o.Price, o.StopPrice, o.Quantity, o.Executed, o.Leaves, uint64(o.ID)); err != nil {
			return errors.WithMessagef(err, "storage: update order %d", id)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WithMessage(err, "storage: commit flush transaction")
	}
	s.pending = make(map[book.OrderID]pendingRow)
	return nil
}

// The remaining Handler methods carry no durable state under spec §4.F's
// two-table schema (symbols/books/levels are derived, not persisted).
func (s *Store) OnAddSymbol(book.SymbolID, string)                                  {}
func (s *Store) OnDeleteSymbol(book.SymbolID)                                       {}
func (s *Store) OnAddOrderBook(book.BookID)                                          {}
func (s *Store) OnUpdateOrderBook(book.BookID, bool)                                {}
func (s *Store) OnDeleteOrderBook(book.BookID)                                      {}
func (s *Store) OnAddLevel(book.BookID, book.Level)                                  {}
func (s *Store) OnUpdateLevel(book.BookID, book.Level, bool)                         {}
func (s *Store) OnDeleteLevel(book.BookID, book.Level)                               {}

var _ events.Handler = (*Store)(nil)
