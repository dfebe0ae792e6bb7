package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// FetchCounter tracks the number of fetches started by query entries.
	FetchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_query_fetch_total",
		Help: "Total number of query fetches started",
	})
	// FetchErrorCounter tracks fetches that settled with an error.
	FetchErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_query_fetch_errors_total",
		Help: "Total number of query fetches that failed",
	})
	// StaleDiscardCounter tracks fetch results dropped because a newer fetch
	// had already been started for the same entry.
	StaleDiscardCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_query_stale_discarded_total",
		Help: "Total number of superseded fetch results discarded",
	})
	// EntryGauge reports the number of live query entries.
	EntryGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tidings_query_entries",
		Help: "Current number of observed query entries",
	})
	// InvalidateCounter tracks the number of topics published on a change bus.
	InvalidateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_invalidate_total",
		Help: "Total number of invalidation topics published",
	})
	// ListenerPanicCounter tracks bus listeners that panicked during delivery.
	ListenerPanicCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_bus_listener_panics_total",
		Help: "Total number of recovered change bus listener panics",
	})
	// MutationCounter tracks the number of mutations executed.
	MutationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_mutation_total",
		Help: "Total number of mutations executed",
	})
	// MutationErrorCounter tracks the number of failed mutations.
	MutationErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tidings_mutation_errors_total",
		Help: "Total number of mutations that failed",
	})
	// WatcherGauge reports the number of active change feed watchers.
	WatcherGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tidings_watchers",
		Help: "Current number of active change feed watchers",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the tidings collectors on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		FetchCounter,
		FetchErrorCounter,
		StaleDiscardCounter,
		EntryGauge,
		InvalidateCounter,
		ListenerPanicCounter,
		MutationCounter,
		MutationErrorCounter,
		WatcherGauge,
	)
}
