// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MappingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portmapd_mappings_total",
			Help: "Port mapping operations by mode and result",
		},
		[]string{"mode", "result"}, // mode: apply|withdraw, result: success|failure
	)

	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portmapd_passes_total",
			Help: "Reconciliation passes by result",
		},
		[]string{"result"}, // success|partial|failure
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portmapd_pass_duration_seconds",
			Help:    "Duration of one reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(MappingsTotal)
	prometheus.MustRegister(PassesTotal)
	prometheus.MustRegister(PassDuration)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
