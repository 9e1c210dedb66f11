// Package metrics registers the counters SPEC_FULL.md's ambient stack
// calls for (commands dispatched, orders matched, persistence failures).
// No HTTP listener is added here: scraping transport is itself "network
// transport beyond a local stream socket", which spec.md §1 excludes, so
// the registry exists only for in-process inspection and tests, following
// grimkirill-code-piece/pkg/trading's CounterVec-at-package-scope pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CommandsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_commands_dispatched_total",
		Help: "Commands accepted by the dispatcher, one per request frame.",
	})

	OrdersMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_orders_matched_total",
		Help: "Orders accepted by an add command, by side; executions are not counted.",
	}, []string{"side"})

	StopsActivated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_stops_activated_total",
		Help: "Stop/stop-limit/trailing-stop orders moved out of their stop index.",
	})

	PersistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchd_persistence_failures_total",
		Help: "Durability Adapter transactions that failed to commit.",
	})
)

func init() {
	prometheus.MustRegister(CommandsDispatched, OrdersMatched, StopsActivated, PersistenceFailures)
}
