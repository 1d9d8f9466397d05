package sales

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesmap",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Result cache lookups by outcome",
	}, []string{"result"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesmap",
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Messages run through the extraction pattern by outcome",
	}, []string{"outcome"})

	pipelineWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesmap",
		Subsystem: "pipeline",
		Name:      "warnings_total",
		Help:      "Absorbed failures by pipeline stage",
	}, []string{"stage"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salesmap",
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "Wall time of uncached pipeline runs",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)
