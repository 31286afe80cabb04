package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "counsel"

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome",
		},
		[]string{"outcome"}, // "ok", "rejected", "upstream_error"
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Chat requests denied by the rate limiter",
		},
	)

	retrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of knowledge-source retrieval in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	retrievalChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_chunks",
			Help:      "Number of chunks placed in the prompt per request",
			Buckets:   []float64{0, 5, 10, 20, 40, 60, 80, 100},
		},
	)

	degradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "degraded_total",
			Help:      "Best-effort stages that fell back to a degraded result",
		},
		[]string{"stage"},
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_calls_total",
			Help:      "Total LLM API calls",
		},
		[]string{"model", "status"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "llm_duration_seconds",
			Help:      "Duration of LLM completion rounds in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"model"},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	toolRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tool_rounds",
			Help:      "Completion rounds per chat request",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	citationUnverifiedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "citation_unverified_total",
			Help:      "Citation identifiers that could not be verified",
		},
	)

	conversationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "conversations_active",
			Help:      "Number of chat streams currently in progress",
		},
	)
)
