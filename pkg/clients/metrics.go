package clients

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesmap",
		Subsystem: "gmail",
		Name:      "requests_total",
		Help:      "Gmail API calls by endpoint and HTTP status",
	}, []string{"endpoint", "status"})

	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "salesmap",
		Subsystem: "gmail",
		Name:      "messages_dropped_total",
		Help:      "Messages discarded because their fetch failed or could not be parsed",
	})
)
