package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "kiosk"

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Local URL resolutions served from a fresh cache entry.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Local URL resolutions that fell back to the remote URL.",
	})
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Network fetch attempts, retries included.",
	})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "fetch",
		Name:      "failures_total",
		Help:      "Descriptors whose fetch failed after every attempt.",
	})
	bytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "fetch",
		Name:      "bytes_total",
		Help:      "Bytes written to the cache from the network.",
	})
	evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries removed by expiry or budget eviction.",
	})
	evictedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "evicted_bytes_total",
		Help:      "Bytes released by eviction.",
	})
	backgroundSyncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "background_sync_runs_total",
		Help:      "Background sync passes started.",
	})
	cacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "items",
		Help:      "Physical entries in the cache store.",
	})
	cacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "bytes",
		Help:      "Tracked size of the cache store.",
	})
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "online",
		Help:      "1 when the media origin answered the last probe.",
	})
)
