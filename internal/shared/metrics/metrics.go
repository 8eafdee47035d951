// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resume_revamp"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	rewritesStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewrites_started_total",
		Help:      "Total rewrites started.",
	})
	rewritesCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewrites_completed_total",
		Help:      "Total rewrites completed.",
	})
	rewritesFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewrites_failed_total",
		Help:      "Total rewrites failed, by failure category.",
	}, []string{"category"})
	rewriteDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rewrite_duration_seconds",
		Help:      "End-to-end rewrite duration.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
	atsScore = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ats_score",
		Help:      "Keyword coverage score of rewritten résumés.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})
	cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rewrite_cache_lookups_total",
		Help:      "Rewrite cache lookups, by result.",
	}, []string{"result"})
	llmCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "LLM calls by provider, purpose and outcome.",
	}, []string{"provider", "purpose", "outcome"})
	llmTokens = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "LLM tokens consumed, by provider and kind.",
	}, []string{"provider", "kind"})
	emails = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_total",
		Help:      "Package emails by outcome.",
	}, []string{"outcome"})
	deliveryJobs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_jobs_total",
		Help:      "Delivery jobs handled by the worker, by outcome.",
	}, []string{"outcome"})
	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status class.",
	}, []string{"method", "route", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IncRewriteStarted increments the started counter.
func IncRewriteStarted() { rewritesStarted.Inc() }

// IncRewriteCompleted increments the completed counter.
func IncRewriteCompleted() { rewritesCompleted.Inc() }

// IncRewriteFailed increments the failed counter for a failure category.
func IncRewriteFailed(category string) { rewritesFailed.WithLabelValues(category).Inc() }

// ObserveRewriteDuration records how long a rewrite took.
func ObserveRewriteDuration(d time.Duration) { rewriteDuration.Observe(d.Seconds()) }

// ObserveATSScore records an audit score.
func ObserveATSScore(score float64) { atsScore.Observe(score) }

// IncCacheLookup counts a rewrite cache hit or miss.
func IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// IncLLMCall counts a provider call. outcome is "ok" or "error".
func IncLLMCall(provider, purpose, outcome string) {
	if purpose == "" {
		purpose = "unknown"
	}
	llmCalls.WithLabelValues(provider, purpose, outcome).Inc()
}

// AddLLMTokens adds prompt and completion token usage.
func AddLLMTokens(provider string, prompt, completion int) {
	if prompt > 0 {
		llmTokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokens.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// IncEmail counts a delivery attempt. outcome is "sent" or "failed".
func IncEmail(outcome string) { emails.WithLabelValues(outcome).Inc() }

// IncDeliveryJob counts a worker job. outcome is "ok", "retry" or "dropped".
func IncDeliveryJob(outcome string) { deliveryJobs.WithLabelValues(outcome).Inc() }

// ObserveHTTPRequest counts a finished request.
func ObserveHTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
}

// Registry exposes the collectors for tests and custom exporters.
func Registry() *prometheus.Registry { return registry }

// Handler serves the registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// HTTPHandler is Handler for non-gin servers such as the worker.
func HTTPHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
