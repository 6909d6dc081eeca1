package restart

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	submissionsTotal prometheus.Counter
	phasesTotal      *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		submissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphman",
			Subsystem: "restart",
			Name:      "submissions_total",
			Help:      "Count of restart executions accepted for background execution",
		})
		phasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphman",
			Subsystem: "restart",
			Name:      "phase_transitions_total",
			Help:      "Count of execution phase transitions",
		}, []string{"phase"})

		if err := prometheus.Register(submissionsTotal); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				submissionsTotal = are.ExistingCollector.(prometheus.Counter)
			}
		}
		if err := prometheus.Register(phasesTotal); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				phasesTotal = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	})
}
