/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ListenersCurrent is the live count of connected listeners across all
	// stream transports.
	ListenersCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftcast_listeners_current",
		Help: "Number of currently connected listeners.",
	})

	// ChunksDispatchedTotal counts chunks successfully enqueued to a
	// listener queue.
	ChunksDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_chunks_dispatched_total",
		Help: "Total number of MP3 chunks dispatched to listener queues.",
	})

	// ChunksDroppedTotal counts chunks evicted from a listener queue under
	// the slow-consumer policy, labeled by reason.
	ChunksDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftcast_chunks_dropped_total",
		Help: "Total number of MP3 chunks dropped from a listener queue.",
	}, []string{"reason"})

	// FetchDuration records fetcher latency by backend and outcome.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "driftcast_fetch_duration_seconds",
		Help:    "Duration of track source fetches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "outcome"})

	// EncoderRestartsTotal counts encoder process (re)starts, including
	// restarts after a crash.
	EncoderRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftcast_encoder_restarts_total",
		Help: "Total number of encoder process starts.",
	})

	// HTTPRequestDuration records HTTP handler latency, excluding the
	// long-lived /stream and /ws/now-playing connections.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "driftcast_http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
