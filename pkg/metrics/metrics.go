// Package metrics exposes Prometheus collectors for the ingestion
// pipeline. Counters are labeled by dataset so one run's two phases stay
// distinguishable on a scrape.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead counts source rows read, per dataset.
	RowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolinks_rows_read_total",
		Help: "Source rows read from the dataset",
	}, []string{"dataset"})

	// RowsAccepted counts rows that passed transformation.
	RowsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolinks_rows_accepted_total",
		Help: "Rows accepted by the record transformer",
	}, []string{"dataset"})

	// RowsRejected counts skipped rows by rejection reason.
	RowsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolinks_rows_rejected_total",
		Help: "Rows rejected by the record transformer",
	}, []string{"dataset", "reason"})

	// RowsCommitted counts rows durably written.
	RowsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolinks_rows_committed_total",
		Help: "Rows committed to the database",
	}, []string{"dataset"})

	// ChunksCommitted counts committed chunk transactions.
	ChunksCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolinks_chunks_committed_total",
		Help: "Chunk transactions committed",
	}, []string{"dataset"})

	// ChunkWriteSeconds observes per-chunk write latency.
	ChunkWriteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geolinks_chunk_write_seconds",
		Help:    "Latency of one chunk's transform and bulk write",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"dataset"})
)

// ObserveChunk records the duration of one chunk's processing.
func ObserveChunk(dataset string, d time.Duration) {
	ChunkWriteSeconds.WithLabelValues(dataset).Observe(d.Seconds())
}
