// Package telemetry wraps OpenTelemetry SDK initialization and provides the
// centralized TracerProvider and MeterProvider configuration for the
// dashboard backend. When telemetry is disabled, noop implementations are
// used and no external service is contacted.
package telemetry
