package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
)

// PromSink records planning runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	solve     *prometheus.HistogramVec
	build     prometheus.Histogram
	objective *prometheus.GaugeVec
	gap       *prometheus.GaugeVec
	size      *prometheus.GaugeVec
	rows      *prometheus.GaugeVec
	remaining *prometheus.GaugeVec
}

// NewPromSink registers planner metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_runs_total",
			Help: "Total number of planning runs by solver status",
		}, []string{"status", "mode"}),
		solve: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_solve_duration_seconds",
			Help:    "Wall time spent in the solver",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"mode"}),
		build: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_build_duration_seconds",
			Help:    "Wall time spent generating the model",
			Buckets: prometheus.DefBuckets,
		}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_objective",
			Help: "Objective value of the last run per instance",
		}, []string{"instance", "mode"}),
		gap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_mip_gap",
			Help: "Relative gap of the last run per instance",
		}, []string{"instance"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_model_size",
			Help: "Number of variables and constraints of the last model",
		}, []string{"instance", "kind"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_constraint_rows",
			Help: "Constraint rows of the last model per family",
		}, []string{"instance", "family"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_budget_remaining",
			Help: "Unspent budget per period of the last plan",
		}, []string{"period"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.solve, err = register(reg, s.solve); err != nil {
		return nil, err
	}
	if s.build, err = register(reg, s.build); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.gap, err = register(reg, s.gap); err != nil {
		return nil, err
	}
	if s.size, err = register(reg, s.size); err != nil {
		return nil, err
	}
	if s.rows, err = register(reg, s.rows); err != nil {
		return nil, err
	}
	if s.remaining, err = register(reg, s.remaining); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun updates the run counter, durations and last-run gauges.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(ev.Status, ev.Mode).Inc()
	s.solve.WithLabelValues(ev.Mode).Observe(ev.SolveDuration.Seconds())
	s.build.Observe(ev.BuildDuration.Seconds())
	s.size.WithLabelValues(ev.Instance, "variables").Set(float64(ev.Variables))
	s.size.WithLabelValues(ev.Instance, "constraints").Set(float64(ev.Constraints))
	for fam, n := range ev.RowsByFamily {
		s.rows.WithLabelValues(ev.Instance, fam).Set(float64(n))
	}
	if ev.Solved {
		s.objective.WithLabelValues(ev.Instance, ev.Mode).Set(ev.Objective)
		s.gap.WithLabelValues(ev.Instance).Set(ev.Gap)
	}
	return nil
}

// RecordLedger sets the remaining budget gauge per period.
func (s *PromSink) RecordLedger(evs []coremetrics.LedgerEvent) error {
	for _, e := range evs {
		s.remaining.WithLabelValues(strconv.Itoa(e.Period)).Set(e.Remaining)
	}
	return nil
}
