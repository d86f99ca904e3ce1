package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("ipse", reg)

	c.ObserveGeneration("stream", "ok", 2*time.Second)
	c.ObserveGeneration("stream", "ok", time.Second)
	c.ObserveGeneration("single_shot", "error", time.Second)
	c.SectionAssembled("instructionsHtml")
	c.MalformedToolCall()
	c.ValidationFailure("schema_mismatch")
	c.MigrationResult("migrated")
	c.FinalizeConflict()

	assert.Equal(t, float64(2), testutil.ToFloat64(
		c.generationsTotal.WithLabelValues("stream", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.generationsTotal.WithLabelValues("single_shot", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.sectionsAssembled.WithLabelValues("instructionsHtml")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.malformedToolCalls))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		c.validationFailures.WithLabelValues("schema_mismatch")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.finalizeConflicts))
}

func TestNilRegistryIsIsolated(t *testing.T) {
	// Two collectors with private registries must not collide on
	// duplicate metric names.
	require.NotPanics(t, func() {
		NewCollector("ipse", nil)
		NewCollector("ipse", nil)
	})
}
