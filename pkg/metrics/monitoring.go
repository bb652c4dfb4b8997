package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kubeclient",
		Subsystem: "executor",
		Name:      "requests_total",
		Help:      "Total number of API server requests by HTTP verb",
	},
	[]string{"verb"},
)

var requestFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kubeclient",
		Subsystem: "executor",
		Name:      "request_failures_total",
		Help:      "Total number of failed API server requests by HTTP verb",
	},
	[]string{"verb"},
)

var watchEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "kubeclient",
		Subsystem: "watch",
		Name:      "events_total",
		Help:      "Total number of watch events received by event type",
	},
	[]string{"type"},
)

var watchSessionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "kubeclient",
		Subsystem: "watch",
		Name:      "sessions_total",
		Help:      "Total number of watch sessions opened",
	},
)

// Register attaches the client's collectors to a registry. Metrics are
// collected regardless; callers opt in to exposing them.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		requestsTotal,
		requestFailuresTotal,
		watchEventsTotal,
		watchSessionsTotal,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// CountRequest records one issued request
func CountRequest(verb string) {
	requestsTotal.WithLabelValues(verb).Inc()
}

// CountRequestFailure records one failed request
func CountRequestFailure(verb string) {
	requestFailuresTotal.WithLabelValues(verb).Inc()
}

// CountWatchEvent records one received watch event
func CountWatchEvent(eventType string) {
	watchEventsTotal.WithLabelValues(eventType).Inc()
}

// CountWatchSession records one opened watch session
func CountWatchSession() {
	watchSessionsTotal.Inc()
}
