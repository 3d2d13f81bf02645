package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradesync_runs_total",
		Help: "Sync runs by outcome.",
	}, []string{"status"})

	fillsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradesync_fills_fetched_total",
		Help: "Raw fills fetched from broker APIs.",
	})

	tradesInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradesync_trades_inserted_total",
		Help: "Round-trip trades persisted.",
	})

	duplicatesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradesync_duplicate_trades_skipped_total",
		Help: "Reconciled trades skipped because their broker trade id already exists.",
	})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradesync_run_duration_seconds",
		Help:    "Duration of full sync runs.",
		Buckets: prometheus.DefBuckets,
	})
)
