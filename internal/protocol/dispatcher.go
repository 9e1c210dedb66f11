// Package protocol implements the Command Dispatcher (spec §4.G): the
// textual grammar parser, the per-request id/info context, and the
// CSV/page response formats of §6. Socket framing and pagination are left
// to internal/server; Dispatch here returns a raw, unframed response
// string.
package protocol

import (
	"context"
	"strconv"
	"strings"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/matching"
	"github.com/ejyy/matchd/internal/metrics"
	"github.com/ejyy/matchd/internal/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FailResponse is returned verbatim for any command that fails to parse
// or that the engine rejects (spec §4.G: "for failures, FAIL").
const FailResponse = "FAIL"

// OKResponse is returned for commands with no other payload (`delete
// order`, `enable matching`, ...).
const OKResponse = "OK"

// Dispatcher parses one command line at a time and drives the Matching
// Engine, assigning ids from its own counter (seeded from storage.LatestID
// at startup, spec §4.F step 1) and flushing the Durability Adapter once
// per request (spec §4.F step 4: "at the end of the request, all such
// updates are committed in a single transaction").
type Dispatcher struct {
	engine *matching.Engine
	queue  *events.Queue
	store  *storage.Store
	logger *zap.Logger

	nextOrderID book.OrderID
	currentBook book.BookID

	exiting bool
}

// New creates a Dispatcher. lastID seeds the id counter (spec §4.F:
// "latest.id is loaded to seed the id counter").
func New(engine *matching.Engine, queue *events.Queue, store *storage.Store, logger *zap.Logger, lastID book.OrderID) *Dispatcher {
	return &Dispatcher{engine: engine, queue: queue, store: store, logger: logger, nextOrderID: lastID}
}

// Exiting reports whether the dispatcher has processed `exit`; the
// connection loop checks this after every Dispatch call (spec §5:
// "closes the loop after the current command completes").
func (d *Dispatcher) Exiting() bool { return d.exiting }

// Dispatch parses and executes one command line, returning its ASCII
// response. Every code path drains the event queue and flushes pending
// durable writes exactly once, even on failure, so a rejected command
// still persists whatever partial state (if any) the engine already
// committed before returning the error.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	metrics.CommandsDispatched.Inc()

	resp, err := d.dispatch(ctx, fields)

	d.queue.Drain()
	if flushErr := d.store.Flush(ctx); flushErr != nil {
		d.logger.Error("protocol: flush durability adapter", zap.Error(flushErr))
		metrics.PersistenceFailures.Inc()
	}

	if err != nil {
		d.logger.Warn("protocol: command failed", zap.String("command", line), zap.Error(err))
		return FailResponse
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, f []string) (string, error) {
	if len(f) == 0 {
		return "", errInvalidCommand
	}

	switch {
	case match(f, "enable", "matching"):
		d.engine.EnableMatching()
		return OKResponse, nil
	case match(f, "disable", "matching"):
		d.engine.DisableMatching()
		return OKResponse, nil
	case match(f, "exit"):
		d.exiting = true
		return OKResponse, nil

	case match(f, "add", "symbol"):
		return d.cmdAddSymbol(f)
	case match(f, "delete", "symbol"):
		return d.cmdDeleteSymbol(f)
	case match(f, "add", "book"):
		return d.cmdAddBook(f)
	case match(f, "delete", "book"):
		return d.cmdDeleteBook(f)
	case match(f, "get", "book"):
		return d.cmdGetBook(f)

	case match(f, "add", "trailing", "stop-limit"):
		return d.cmdAddTrailingStopLimit(f)
	case match(f, "add", "trailing", "stop"):
		return d.cmdAddTrailingStop(f)
	case match(f, "add", "stop-limit"):
		return d.cmdAddStopLimit(f)
	case match(f, "add", "stop"):
		return d.cmdAddStop(f)
	case match(f, "add", "slippage", "market"):
		return d.cmdAddSlippageMarket(f)
	case match(f, "add", "market"):
		return d.cmdAddMarket(f)
	case match(f, "add", "ioc", "limit"):
		return d.cmdAddLimit(f, 3, book.IOC)
	case match(f, "add", "fok", "limit"):
		return d.cmdAddLimit(f, 3, book.FOK)
	case match(f, "add", "aon", "limit"):
		return d.cmdAddLimit(f, 3, book.AON)
	case match(f, "add", "limit"):
		return d.cmdAddLimit(f, 2, book.GTC)

	case match(f, "reduce", "order"):
		return d.cmdReduceOrder(f)
	case match(f, "modify", "order"):
		return d.cmdModifyOrder(f)
	case match(f, "mitigate", "order"):
		return d.cmdMitigateOrder(f)
	case match(f, "replace", "order"):
		return d.cmdReplaceOrder(f)
	case match(f, "delete", "order"):
		return d.cmdDeleteOrder(f)
	case match(f, "get", "order"):
		return d.cmdGetOrder(f)
	}

	return "", errInvalidCommand
}

var errInvalidCommand = errors.New("protocol: invalid command")

// match reports whether f begins with exactly the given (lowercased)
// tokens, compared case-insensitively. Tokens are compared whole, so
// "add stop" does not match an "add stop-limit ..." line (its second token
// is "stop-limit", not "stop"); dispatch still lists the longer prefixes
// first, as spec §4.G describes.
func match(f []string, tokens ...string) bool {
	if len(f) < len(tokens) {
		return false
	}
	for i, tok := range tokens {
		if !strings.EqualFold(f[i], tok) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) allocID() book.OrderID {
	d.nextOrderID++
	return d.nextOrderID
}

func idString(id book.OrderID) string {
	return strconv.FormatUint(uint64(id), 10)
}
