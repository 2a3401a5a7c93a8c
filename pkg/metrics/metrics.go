package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_claims_total",
		Help: "The total number of claims by final state and reason",
	}, []string{"state", "reason", "profile"})

	ClaimDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftclaim_claim_duration_seconds",
		Help:    "Time taken from claim start to outcome",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
	}, []string{"profile"})

	ClaimsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftclaim_claims_in_flight",
		Help: "The number of claims currently being processed",
	})

	SubmissionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_submission_attempts_total",
		Help: "Submission attempts by outcome and failure kind",
	}, []string{"outcome", "kind"})

	AdoptedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_adopted_transactions_total",
		Help: "Transactions adopted from the recent-transaction lookup instead of resending",
	}, []string{"trigger"})

	ConfirmationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_confirmation_results_total",
		Help: "Confirmation wait results by status",
	}, []string{"status"})

	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_metadata_sync_attempts_total",
		Help: "Post-claim metadata sync attempts by outcome",
	}, []string{"outcome"})

	DisplayRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_display_registrations_total",
		Help: "Asset visibility registrations by warm-up state and result",
	}, []string{"warmup", "result"})

	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_rpc_calls_total",
		Help: "RPC calls by endpoint and result",
	}, []string{"endpoint", "result"})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftclaim_backend_requests_total",
		Help: "Backend API requests by operation and status class",
	}, []string{"operation", "status"})
)
