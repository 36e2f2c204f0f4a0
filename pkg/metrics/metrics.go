package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed tracks per-record throughput of the sync pipeline
	// Labels allow filtering by stage (events/participants/gifts) and outcome
	// (created/updated/matched/skipped/error)
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionsync_records_processed_total",
		Help: "Total number of source records processed by the synchronizer",
	}, []string{"stage", "status"})

	// APIRequests tracks every outbound HTTP call per remote system
	// A rising error ratio here usually means one of the platforms is degraded
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionsync_api_requests_total",
		Help: "Total number of HTTP requests issued to the remote systems",
	}, []string{"system", "method", "status"})

	// APIRetries counts retry attempts by trigger (unauthorized, server_error, network)
	// Frequent unauthorized retries indicate token churn; network points at connectivity
	APIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionsync_api_retries_total",
		Help: "Total number of HTTP retries grouped by trigger",
	}, []string{"system", "reason"})

	// TokenRefreshes tracks token acquisition and refresh outcomes per system
	// A refresh failure on Beacon requires operator re-authorization
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionsync_token_refreshes_total",
		Help: "Total number of OAuth token acquisitions/refreshes",
	}, []string{"system", "outcome"})

	// ReconciliationOutcomes shows which resolution path settled each constituent
	// (cache, mapped, stale_mapping, email_search, name_search, created, skipped)
	ReconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "missionsync_reconciliation_total",
		Help: "Constituent reconciliation results by resolution path",
	}, []string{"path"})

	// StageDuration measures wall time per pipeline stage
	// Buckets sized for a few thousand sequential HTTP-bound records
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "missionsync_stage_duration_seconds",
		Help:    "Duration of each sync stage in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	}, []string{"stage"})

	// MappingEntries exposes the size of the persisted ID mapping tables
	MappingEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "missionsync_mapping_entries",
		Help: "Current number of persisted source-to-destination ID mappings",
	}, []string{"kind"})

	// HealthStatus provides a binary 0/1 signal for watch mode
	// 1 = last cycle succeeded, 0 = last cycle failed
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "missionsync_healthy",
		Help: "Health of the last sync cycle (1 for success, 0 for failure)",
	})
)
