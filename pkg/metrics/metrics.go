// Package metrics defines the Prometheus collectors for mediad.
//
// Everything registers on the default registry and is exposed through
// promhttp on the admin listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts finished ingests by path and outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_uploads_total",
		Help: "Completed upload attempts by path (simple, chunked, token_image) and outcome (ok, dedup, error).",
	}, []string{"path", "outcome"})

	// ChunkBytesReceived sums accepted chunk payload bytes.
	ChunkBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediad_chunk_bytes_received_total",
		Help: "Bytes accepted through the chunked upload endpoint.",
	})

	// ProcessingDuration observes image pipeline latency.
	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediad_image_processing_duration_seconds",
		Help:    "Wall time of the image processing pipeline.",
		Buckets: prometheus.DefBuckets,
	})

	// ServeRequests counts blob serving by variant and result.
	ServeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_serve_requests_total",
		Help: "Media serve requests by variant (optimized, original) and result (ok, not_modified, not_found).",
	}, []string{"variant", "result"})

	// SweepRuns counts expiry sweep executions.
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediad_sweep_runs_total",
		Help: "Executions of the session expiry sweep.",
	})

	// SweepSessionsCleaned counts sessions removed by the sweep.
	SweepSessionsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediad_sweep_sessions_cleaned_total",
		Help: "Expired upload sessions removed by the sweep.",
	})

	// TokenUpdates counts token metadata writes by origin and outcome.
	TokenUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediad_token_updates_total",
		Help: "Token metadata updates by origin (signed, admin) and outcome (ok, rejected, error).",
	}, []string{"origin", "outcome"})
)
