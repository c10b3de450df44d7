package loader

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atnpgo/arwes/internal/model"
)

// Metric label values.
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"

	reasonNone     = "none"
	reasonResource = "resource"
	reasonTimeout  = "timeout"
	reasonCanceled = "canceled"
)

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwes_loads_total",
			Help: "Total number of resource batches loaded, by outcome and failure reason.",
		},
		[]string{"outcome", "reason"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arwes_load_duration_seconds",
			Help:    "Time from fan-out to batch settlement, in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	resourcesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arwes_resources_total",
			Help: "Total number of individual resource loads that settled, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	loadsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arwes_loads_in_flight",
			Help: "Number of batches currently waiting to settle.",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal)
	prometheus.MustRegister(loadDuration)
	prometheus.MustRegister(resourcesTotal)
	prometheus.MustRegister(loadsInFlight)

	// Pre-initialize label combinations so they appear in /metrics from startup.
	loadsTotal.WithLabelValues(outcomeSucceeded, reasonNone)
	for _, reason := range []string{reasonResource, reasonTimeout, reasonCanceled} {
		loadsTotal.WithLabelValues(outcomeFailed, reason)
	}
	for _, k := range model.Kinds {
		resourcesTotal.WithLabelValues(string(k), outcomeSucceeded)
		resourcesTotal.WithLabelValues(string(k), outcomeFailed)
	}
}
