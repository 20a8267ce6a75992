// Package telemetry exposes Prometheus metrics for the delivery core.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds all wsmesh collectors, separate from the default
	// registry so embedding programs don't leak runtime collectors
	// into scrapes.
	Registry = prometheus.NewRegistry()

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsmesh",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the radio, including retries.",
		},
		[]string{"node"},
	)

	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsmesh",
			Name:      "delivery_outcomes_total",
			Help:      "Resolved delivery outcomes by state.",
		},
		[]string{"node", "outcome"},
	)

	Retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wsmesh",
			Name:      "retries_total",
			Help:      "Resends issued for timed-out messages.",
		},
	)

	Confirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wsmesh",
			Name:      "confirmations_sent_total",
			Help:      "Deferred confirmation replies sent.",
		},
	)

	NodeSNR = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wsmesh",
			Name:      "node_snr",
			Help:      "Most recent acknowledged SNR per node.",
		},
		[]string{"node"},
	)
)

func init() {
	Registry.MustRegister(MessagesSent, Outcomes, Retries, Confirmations, NodeSNR)
}

// Handler returns the HTTP handler serving the wsmesh registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
