// Package metrics exposes Prometheus counters for the processing and
// billing paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summarizer_videos_processed_total",
		Help: "Distinct videos counted toward daily usage.",
	})

	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "summarizer_provider_calls_total",
		Help: "Chat-completion calls to the AI provider by outcome.",
	}, []string{"outcome"})

	CostIncurredUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summarizer_cost_incurred_usd_total",
		Help: "Accumulated cost attributed to managed-tier processing.",
	})

	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summarizer_ledger_write_failures_total",
		Help: "Usage ledger writes that failed after the response was sent.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "summarizer_stripe_webhook_events_total",
		Help: "Stripe webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
)
