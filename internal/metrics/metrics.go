// Package metrics holds the prometheus collectors exported by ipsguard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Detection
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_events_total",
			Help: "Security events extracted from log lines",
		},
		[]string{"app"},
	)

	BansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_bans_total",
			Help: "Addresses banned",
		},
		[]string{"reason"},
	)

	// Enrichment
	RBLQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_rbl_queries_total",
			Help: "RBL zone queries by outcome",
		},
		[]string{"zone", "result"}, // result: listed/clean/timeout/error
	)

	RBLQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipsguard_rbl_query_duration_seconds",
			Help:    "RBL zone query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		},
		[]string{"zone"},
	)

	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_geo_lookups_total",
			Help: "Geo and ASN lookups by outcome",
		},
		[]string{"table", "result"}, // result: hit/miss/unavailable
	)

	// Enforcement
	TerminationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipsguard_terminations_total",
			Help: "Processes killed for a banned address",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
