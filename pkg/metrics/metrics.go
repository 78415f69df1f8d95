// Package metrics provides Prometheus metrics for the dropgate service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry for all dropgate metrics.
var Registry = prometheus.NewRegistry()

var (
	IngestsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dropgate_ingests_total",
		Help: "Total objects successfully ingested",
	})
	IngestedBytesTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dropgate_ingested_bytes_total",
		Help: "Total payload bytes written to the object store",
	})
	IngestFailuresTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dropgate_ingest_failures_total",
		Help: "Ingestions rejected or failed, by reason",
	}, []string{"reason"})
	RetrievalsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dropgate_retrievals_total",
		Help: "Total successful object retrievals",
	})
	RateLimitedTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dropgate_rate_limited_total",
		Help: "Ingestion attempts denied by the admission limiter",
	})
	SweptObjectsTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "dropgate_swept_objects_total",
		Help: "Objects removed by retention sweeps",
	})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
