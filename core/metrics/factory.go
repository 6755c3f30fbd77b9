package metrics

import (
	"fmt"

	"github.com/kilianp07/v2gplan/core/factory"
)

// sinkRegistry holds the sink types the planner can reference from the
// metrics.sinks list of its configuration. infra/metrics registers nop,
// prometheus and influx at init.
var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds the sink every planner run reports to from the
// metrics.sinks entries. No entry yields a NopSink, several entries fan out
// through a MultiSink in list order. Errors name the failing entry.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	sinks := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("sinks[%d] (%s): %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
