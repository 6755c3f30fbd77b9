// Package metrics defines the observability contract of the planner. A
// MetricsSink records one RunEvent per solve; sinks may also implement
// LedgerRecorder and ProgressRecorder for per-period spend and search
// progress. Sinks are built by name from configuration through the factory
// registry, and NewMetricsSink returns a MultiSink when several are
// configured.
package metrics
