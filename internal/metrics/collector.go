// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates pipeline metrics. A nil *Collector is valid and
// records nothing, so callers never need to guard.
type Collector struct {
	workflowRuns    *prometheus.CounterVec
	workflowSteps   *prometheus.CounterVec
	agentCalls      *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	poolConnections prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "workflow_runs_total",
			Help:      "Completed workflow runs by terminal state.",
		}, []string{"state"}),
		workflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "workflow_transitions_total",
			Help:      "Applied state transitions by event.",
		}, []string{"event"}),
		agentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "agent_invocations_total",
			Help:      "Agent backend invocations by role and outcome.",
		}, []string{"role", "outcome"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentpipe",
			Name:      "agent_invocation_seconds",
			Help:      "Agent backend invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"role"}),
		tokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "tokens_total",
			Help:      "Tokens consumed by role and direction.",
		}, []string{"role", "direction"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "response_cache_hits_total",
			Help:      "Response cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentpipe",
			Name:      "response_cache_misses_total",
			Help:      "Response cache misses.",
		}),
		poolConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentpipe",
			Name:      "pool_connections",
			Help:      "Open pooled connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.workflowRuns,
			c.workflowSteps,
			c.agentCalls,
			c.agentDuration,
			c.tokensUsed,
			c.cacheHits,
			c.cacheMisses,
			c.poolConnections,
		)
	}

	return c
}

// RecordRun counts a finished workflow run.
func (c *Collector) RecordRun(terminalState string) {
	if c == nil {
		return
	}
	c.workflowRuns.WithLabelValues(terminalState).Inc()
}

// RecordTransition counts one applied state transition.
func (c *Collector) RecordTransition(event string) {
	if c == nil {
		return
	}
	c.workflowSteps.WithLabelValues(event).Inc()
}

// RecordAgentCall counts one backend invocation.
func (c *Collector) RecordAgentCall(role, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentCalls.WithLabelValues(role, outcome).Inc()
	c.agentDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordTokens counts consumed tokens.
func (c *Collector) RecordTokens(role string, prompt, completion int) {
	if c == nil {
		return
	}
	c.tokensUsed.WithLabelValues(role, "prompt").Add(float64(prompt))
	c.tokensUsed.WithLabelValues(role, "completion").Add(float64(completion))
}

// RecordCacheHit counts a response cache hit.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss counts a response cache miss.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// SetPoolConnections reports current pool occupancy.
func (c *Collector) SetPoolConnections(n int) {
	if c == nil {
		return
	}
	c.poolConnections.Set(float64(n))
}
