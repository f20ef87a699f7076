// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookrec"

var registerOnce sync.Once

// Register registers embedding, search and ingestion metrics with the default
// registry. Must be called from main; repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		for _, group := range [][]prometheus.Collector{
			embeddingCollectors(), searchCollectors(), ingestCollectors(),
		} {
			prometheus.MustRegister(group...)
		}
	})
}
