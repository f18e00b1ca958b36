package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful batch regenerations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed regenerations (feed or pipeline issues).
	OutcomeError = "error"
)

var (
	regenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet_sentinel",
			Name:      "regenerations_total",
			Help:      "Total number of alert batch regenerations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	regenerationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fleet_sentinel",
			Name:      "regeneration_seconds",
			Help:      "Batch regeneration latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet_sentinel",
			Name:      "resolutions_total",
			Help:      "Resolved alerts partitioned by resolution source.",
		},
		[]string{"source"},
	)
)

// Register attaches fleet-sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		regenerationsTotal,
		regenerationDurationSeconds,
		resolutionsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRegeneration records a regeneration duration and outcome label.
func ObserveRegeneration(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	regenerationsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	regenerationDurationSeconds.Observe(duration.Seconds())
}

// ObserveResolution counts one resolved alert by source.
func ObserveResolution(source string) {
	resolutionsTotal.WithLabelValues(source).Inc()
}
