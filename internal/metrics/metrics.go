// package metrics holds the Prometheus instrumentation for scans, reconciliations and the
// remote lister. Collectors register with the default registry and are exposed by the
// server's /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes per playlist.
const (
	ScanQueued  = "queued"
	ScanInSync  = "in_sync"
	ScanSkipped = "skipped"
	ScanFailed  = "failed"
)

// Reconcile outcomes.
const (
	ReconcileCompleted = "completed"
	ReconcileFailed    = "failed"
	ReconcileRejected  = "rejected"
)

var (
	// ScanRunsTotal counts completed scan_all passes.
	ScanRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_scan_runs_total",
		Help: "Total number of completed library scans",
	})

	// ScanPlaylistsTotal counts per-playlist scan outcomes.
	ScanPlaylistsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plsync_scan_playlists_total",
		Help: "Playlists scanned, by outcome",
	}, []string{"outcome"})

	// ScanDuration measures a whole scan pass.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plsync_scan_duration_seconds",
		Help:    "Duration of a library scan in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// ValidationIssuesTotal counts integrity findings by kind.
	ValidationIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plsync_validation_issues_total",
		Help: "Integrity issues reported by the validator, by kind",
	}, []string{"kind"})

	// ReconcileTotal counts finished reconciliation cycles by outcome.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plsync_reconcile_total",
		Help: "Reconciliation cycles, by outcome",
	}, []string{"outcome"})

	// ReconcileAttemptsTotal counts individual attempts, including retries.
	ReconcileAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_reconcile_attempts_total",
		Help: "Total reconcile attempts including retries",
	})

	// ReconcileDuration measures one reconcile attempt, dominated by the fetcher.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plsync_reconcile_duration_seconds",
		Help:    "Duration of a reconcile attempt in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	// ItemsFetchedTotal counts media items downloaded by the fetcher.
	ItemsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_items_fetched_total",
		Help: "Total media items downloaded",
	})

	// ArchiveEntriesRemovedTotal counts ledger lines dropped.
	ArchiveEntriesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_archive_entries_removed_total",
		Help: "Total archive ledger entries removed",
	})

	// FilesRemovedTotal counts local files deleted for removed items.
	FilesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_files_removed_total",
		Help: "Total local files deleted for removed items",
	})

	// FileDeleteErrorsTotal counts deletions that failed and were skipped.
	FileDeleteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_file_delete_errors_total",
		Help: "Total local file deletions that failed",
	})

	// LockContentionTotal counts reconcile requests rejected because the playlist was busy.
	LockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plsync_lock_contention_total",
		Help: "Reconcile requests rejected by the per-playlist lock",
	})

	// JobsInFlight is the number of dispatched jobs currently running.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plsync_jobs_in_flight",
		Help: "Dispatched reconcile jobs currently running",
	})

	// RemoteListTotal counts flat listings by outcome (ok, unavailable, rejected).
	RemoteListTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plsync_remote_list_total",
		Help: "Remote flat listings, by outcome",
	}, []string{"outcome"})

	// RemoteBreakerState mirrors the circuit breaker: 0 closed, 1 half-open, 2 open.
	RemoteBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plsync_remote_breaker_state",
		Help: "Remote lister circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// RecordScan records the outcome counts of one scan pass.
func RecordScan(queued, inSync, skipped, failed int, elapsed time.Duration) {
	ScanRunsTotal.Inc()
	ScanPlaylistsTotal.WithLabelValues(ScanQueued).Add(float64(queued))
	ScanPlaylistsTotal.WithLabelValues(ScanInSync).Add(float64(inSync))
	ScanPlaylistsTotal.WithLabelValues(ScanSkipped).Add(float64(skipped))
	ScanPlaylistsTotal.WithLabelValues(ScanFailed).Add(float64(failed))
	ScanDuration.Observe(elapsed.Seconds())
}

// RecordReconcile records the counters of one successful reconcile attempt.
func RecordReconcile(fetched, removedEntries, removedFiles, deleteErrors int, elapsed time.Duration) {
	ItemsFetchedTotal.Add(float64(fetched))
	ArchiveEntriesRemovedTotal.Add(float64(removedEntries))
	FilesRemovedTotal.Add(float64(removedFiles))
	FileDeleteErrorsTotal.Add(float64(deleteErrors))
	ReconcileDuration.Observe(elapsed.Seconds())
}
