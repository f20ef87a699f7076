package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and index metrics.
var (
	IngestItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Ingested documents by status and failure cause",
		},
		[]string{"status", "cause"},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents currently published in the indexes",
		},
	)

	ANNTombstones = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ann_tombstones",
			Help:      "Deleted or replaced ANN nodes awaiting vacuum",
		},
	)
)

func ingestCollectors() []prometheus.Collector {
	return []prometheus.Collector{IngestItemsTotal, IndexDocuments, ANNTombstones}
}
