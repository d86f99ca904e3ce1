// Package metrics provides internal metrics collection for the generation
// pipeline. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the prometheus instruments for the engine.
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	sectionsAssembled  *prometheus.CounterVec
	malformedToolCalls prometheus.Counter
	validationFailures *prometheus.CounterVec
	migrationsTotal    *prometheus.CounterVec
	promptTokens       prometheus.Histogram
	finalizeConflicts  prometheus.Counter
}

// NewCollector registers the engine instruments on the given registry.
// Passing nil creates a private registry, which keeps tests isolated.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total generation requests by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generation duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"mode"},
		),
		sectionsAssembled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sections_assembled_total",
				Help:      "Structured document sections assembled by key",
			},
			[]string{"key"},
		),
		malformedToolCalls: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_tool_calls_total",
				Help:      "Tool-call payloads dropped during streaming assembly",
			},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Structured output validation failures by rule",
			},
			[]string{"rule"},
		),
		migrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "legacy_migrations_total",
				Help:      "Legacy content migrations by result",
			},
			[]string{"result"},
		),
		promptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prompt_tokens",
				Help:      "Token count of rendered prompts",
				Buckets:   prometheus.ExponentialBuckets(256, 2, 8),
			},
		),
		finalizeConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "finalize_conflicts_total",
				Help:      "Optimistic finalize retries caused by revision conflicts",
			},
		),
	}
}

// ObserveGeneration records one completed generation attempt.
func (c *Collector) ObserveGeneration(mode, status string, elapsed time.Duration) {
	c.generationsTotal.WithLabelValues(mode, status).Inc()
	c.generationDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// SectionAssembled records one successfully assembled section.
func (c *Collector) SectionAssembled(key string) {
	c.sectionsAssembled.WithLabelValues(key).Inc()
}

// MalformedToolCall records one dropped tool-call payload.
func (c *Collector) MalformedToolCall() {
	c.malformedToolCalls.Inc()
}

// ValidationFailure records one validation failure by rule name.
func (c *Collector) ValidationFailure(rule string) {
	c.validationFailures.WithLabelValues(rule).Inc()
}

// MigrationResult records one legacy migration outcome ("migrated"/"failed").
func (c *Collector) MigrationResult(result string) {
	c.migrationsTotal.WithLabelValues(result).Inc()
}

// ObservePromptTokens records the rendered prompt's token count.
func (c *Collector) ObservePromptTokens(tokens int) {
	c.promptTokens.Observe(float64(tokens))
}

// FinalizeConflict records one lost finalize CAS attempt.
func (c *Collector) FinalizeConflict() {
	c.finalizeConflicts.Inc()
}
