package metrics

import "github.com/kilianp07/v2gplan/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" koanf:"sinks"`
	// PrometheusAddr, when set, serves /metrics on this address while the
	// planner runs.
	PrometheusAddr string `json:"prometheus_addr" koanf:"prometheus_addr"`
}
