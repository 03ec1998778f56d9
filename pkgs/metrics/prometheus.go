package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shc"

var (
	// GatewayAttempts counts content fetch attempts per gateway host and outcome.
	GatewayAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_attempts_total",
			Help:      "Content gateway fetch attempts by gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)

	// GatewayExhausted counts references for which every candidate failed.
	GatewayExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_exhausted_total",
			Help:      "Content resolutions where every gateway failed",
		},
	)

	LedgerLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_loads_total",
			Help:      "Full ledger loads by outcome",
		},
		[]string{"outcome"},
	)

	LedgerRecordFetches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_record_fetches_total",
			Help:      "getRecord calls issued against the ledger contract",
		},
	)

	LedgerCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_cache_hits_total",
			Help:      "Ledger records served from the session record cache",
		},
	)

	LedgerLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_load_duration_seconds",
			Help:      "Duration of full ledger loads",
			Buckets:   prometheus.DefBuckets,
		},
	)

	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files handled by the pinning service by outcome",
		},
		[]string{"backend", "outcome"},
	)

	// DedupHits counts files whose bytes were already pinned.
	DedupHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "Uploads skipped because identical bytes were already seen",
		},
		[]string{"layer"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Record submissions by outcome",
		},
		[]string{"outcome"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Pending transaction reconciliation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// LedgerBlocksScanned tracks the last block checked for RecordSubmitted logs.
	LedgerBlocksScanned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_watch_last_block",
			Help:      "Last block scanned by the ledger watch",
		},
	)

	LedgerRecordsObserved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_records_observed_total",
			Help:      "RecordSubmitted logs seen by the ledger watch",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Session bus events dropped on a full buffer",
		},
		[]string{"type"},
	)

	EventHandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Subscriber handlers that panicked or timed out",
		},
		[]string{"type"},
	)

	// APIRequestDuration tracks HTTP handler latency per route.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP API request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayAttempts,
		GatewayExhausted,
		LedgerLoads,
		LedgerRecordFetches,
		LedgerCacheHits,
		LedgerLoadDuration,
		Uploads,
		DedupHits,
		Submissions,
		Reconciliations,
		LedgerBlocksScanned,
		LedgerRecordsObserved,
		EventsDropped,
		EventHandlerFailures,
		APIRequestDuration,
	)
}
