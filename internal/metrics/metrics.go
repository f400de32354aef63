// Package metrics provides Prometheus metrics for the storage engine:
// commits, WAL rotations, free-list rebalances and page allocations. No
// HTTP server is started by this module -- an embedding process registers
// Collector's metrics against its own prometheus.Registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric this module exports. DB.Metrics() returns
// nil until metrics are enabled; NewCollector always returns a usable value
// registered against reg.
type Collector struct {
	CommitsTotal         *prometheus.CounterVec
	CommitDuration       prometheus.Histogram
	WalRotationsTotal    prometheus.Counter
	FreelistCacheSize    prometheus.Gauge
	FreelistLinkedTotal  prometheus.Counter
	FreelistPulledTotal  prometheus.Counter
	PageAllocsTotal      prometheus.Counter
	PageFreesTotal       prometheus.Counter
	DbSizePages          prometheus.Gauge
}

// NewCollector builds and registers every treestore_* metric against reg.
// Passing prometheus.NewRegistry() (rather than the global default
// registry) lets an embedding process scope metrics per-DB instance.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treestore_commits_total",
				Help: "Total number of committed mutations, by operation.",
			},
			[]string{"operation"},
		),
		CommitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "treestore_commit_duration_seconds",
				Help:    "Duration of a commit (flush + fsync + WAL record write).",
				Buckets: prometheus.DefBuckets,
			},
		),
		WalRotationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "treestore_wal_rotations_total",
				Help: "Total number of times the WAL ring wrapped back to slot 0.",
			},
		),
		FreelistCacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "treestore_freelist_cache_size",
				Help: "Number of pages currently held in the committed free-list cache.",
			},
		),
		FreelistLinkedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "treestore_freelist_linked_total",
				Help: "Total pages linked onto the on-disk free list during cache rebalances.",
			},
		),
		FreelistPulledTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "treestore_freelist_pulled_total",
				Help: "Total pages pulled from the on-disk free list (or grown) during cache rebalances.",
			},
		),
		PageAllocsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "treestore_page_allocs_total",
				Help: "Total pages allocated across all operations.",
			},
		),
		PageFreesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "treestore_page_frees_total",
				Help: "Total pages freed across all operations.",
			},
		),
		DbSizePages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "treestore_db_size_pages",
				Help: "Current database file size in pages.",
			},
		),
	}
}

// ObserveCommit records one committed mutation.
func (c *Collector) ObserveCommit(operation string, dur time.Duration) {
	c.CommitsTotal.WithLabelValues(operation).Inc()
	c.CommitDuration.Observe(dur.Seconds())
}

// ObserveFreelistRebalance records one commit's free-list cache rebalance.
func (c *Collector) ObserveFreelistRebalance(linked, pulled int, cacheSize int) {
	c.FreelistLinkedTotal.Add(float64(linked))
	c.FreelistPulledTotal.Add(float64(pulled))
	c.FreelistCacheSize.Set(float64(cacheSize))
}

// ObservePages records one operation's net page allocations and frees.
func (c *Collector) ObservePages(allocs, frees int) {
	c.PageAllocsTotal.Add(float64(allocs))
	c.PageFreesTotal.Add(float64(frees))
}

// SetSizePages records the database's current size.
func (c *Collector) SetSizePages(pages uint32) {
	c.DbSizePages.Set(float64(pages))
}
