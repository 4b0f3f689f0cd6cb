// Package metrics exposes the Prometheus collectors for indexing and search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImagesIndexedTotal counts single-image index operations by outcome.
	ImagesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagesim_images_indexed_total",
			Help: "Total number of indexImage operations by status",
		},
		[]string{"status"},
	)

	// IndexDurationSeconds measures feature extraction plus store upsert time.
	IndexDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagesim_index_duration_seconds",
			Help:    "Duration of indexImage operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SearchesTotal counts similarity searches.
	SearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imagesim_searches_total",
			Help: "Total number of similarity searches",
		},
	)

	// SearchDurationSeconds measures end-to-end search latency.
	SearchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "imagesim_search_duration_seconds",
			Help:    "Duration of similarity searches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RecordsSkippedTotal counts stored records skipped during a scan,
	// labelled by reason ("config_mismatch", "malformed").
	RecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagesim_records_skipped_total",
			Help: "Stored records skipped during search scans by reason",
		},
		[]string{"reason"},
	)

	// PrefilterSkippedTotal counts candidates eliminated by the Hamming
	// pre-filter before the vector comparisons ran.
	PrefilterSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "imagesim_prefilter_skipped_total",
			Help: "Search candidates eliminated by the perceptual-hash pre-filter",
		},
	)

	// RebuildItemsTotal counts bulk rebuild items by outcome.
	RebuildItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagesim_rebuild_items_total",
			Help: "Total number of rebuild items by status",
		},
		[]string{"status"},
	)
)
