// Command matchd is the daemon entrypoint: flag parsing, logger and
// database setup, startup replay, and the connection loop (spec §6's CLI
// collaborator: "--name <daemon_name> --path <root_dir>"; exit codes: 0
// on clean exit, 1 on setup failure).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ejyy/matchd/internal/book"
	"github.com/ejyy/matchd/internal/daemon"
	"github.com/ejyy/matchd/internal/events"
	"github.com/ejyy/matchd/internal/matching"
	"github.com/ejyy/matchd/internal/protocol"
	"github.com/ejyy/matchd/internal/server"
	"github.com/ejyy/matchd/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	name := flag.String("name", "matchd", "daemon instance name")
	root := flag.String("path", ".", "root directory for .sock/.log/.err/.status/.db")
	flag.Parse()

	paths := daemon.Paths{Root: *root, Name: *name}
	if err := paths.EnsureRoot(); err != nil {
		fmt.Fprintln(os.Stderr, "matchd: setup failure:", err)
		os.Exit(1)
	}

	logFile, errFile, err := paths.OpenLogFiles()
	if err != nil {
		fmt.Fprintln(os.Stderr, "matchd: setup failure:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	defer errFile.Close()

	logger := newLogger(logFile, errFile)
	defer logger.Sync()

	if err := run(paths, logger); err != nil {
		logger.Error("abend", zap.Error(err))
		paths.WriteStatus(daemon.Abend)
		os.Exit(1)
	}
}

// newLogger splits output the way the `.log`/`.err` pair of spec §6
// implies: everything below Warn goes to `.log`, Warn and above goes only
// to `.err`.
func newLogger(logFile, errFile *os.File) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	infoLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l < zapcore.WarnLevel })
	warnLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.WarnLevel })

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(logFile), infoLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(errFile), warnLevel),
	)
	return zap.New(core)
}

// defaultBookID is the single order book every persisted order belongs
// to. Spec §4.F's `orders` schema carries `symbol_id` but no `book_id`
// column, and spec §1 excludes multi-symbol cross-book matching as a
// non-goal, so replay and first-run setup both assume exactly one live
// book per symbol, keyed by the symbol id (see DESIGN.md).
func defaultBookID(symbol book.SymbolID) book.BookID { return book.BookID(symbol) }

func run(paths daemon.Paths, logger *zap.Logger) error {
	store, err := storage.Open(paths.DBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	queue := events.NewQueue(store)
	engine := matching.New(queue)

	lastID, err := store.LatestID(context.Background())
	if err != nil {
		return err
	}

	if err := replay(engine, store); err != nil {
		return err
	}

	dispatcher := protocol.New(engine, queue, store, logger, lastID)
	engine.EnableMatching()

	srv, err := server.New(paths.SockPath(), dispatcher, logger)
	if err != nil {
		return err
	}

	if err := paths.WriteStatus(daemon.Running); err != nil {
		return err
	}

	if err := srv.Run(context.Background()); err != nil {
		return err
	}
	return paths.WriteStatus(daemon.GracefullyStopped)
}

// replay rebuilds the in-memory book from the durability store on
// startup (spec §4.F: "all rows in orders are replayed through AddOrder
// with a 'replay' flag that suppresses persistence side effects while
// still allowing the engine to rebuild levels and reconcile any
// last-state fields").
func replay(engine *matching.Engine, store *storage.Store) error {
	return store.WithReplay(func() error {
		orders, err := store.LoadOrders(context.Background())
		if err != nil {
			return err
		}
		seenBooks := make(map[book.BookID]bool)
		for _, order := range orders {
			bookID := defaultBookID(order.SymbolID)
			if !seenBooks[bookID] {
				if _, ok := engine.Book(bookID); !ok {
					if err := engine.AddBook(bookID); err != nil {
						return err
					}
				}
				seenBooks[bookID] = true
			}
			if err := engine.AddOrder(bookID, order); err != nil {
				return err
			}
		}
		return nil
	})
}
