// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adboard",
		Subsystem: "feed",
		Name:      "builds_total",
		Help:      "Assembled feeds, labelled by whether sourcing was personalized.",
	}, []string{"personalized"})

	GrantReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adboard",
		Subsystem: "ledger",
		Name:      "reservations_total",
		Help:      "Grant reservation attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adboard",
		Subsystem: "payments",
		Name:      "events_total",
		Help:      "Payment-completed events ingested by grant kind.",
	}, []string{"kind"})
)

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
