package metrics

import "time"

// RunEvent summarises one planning run.
type RunEvent struct {
	RunID       string
	Instance    string
	Mode        string
	Status      string
	Objective   float64
	Bound       float64
	Gap         float64
	Nodes       int
	Variables   int
	Constraints int
	// Solved is set when Objective and Gap come from an incumbent.
	Solved bool
	// RowsByFamily counts emitted constraints per family.
	RowsByFamily  map[string]int
	BuildDuration time.Duration
	SolveDuration time.Duration
	Time          time.Time
}

// MetricsSink records planning runs for observability purposes.
type MetricsSink interface {
	RecordRun(ev RunEvent) error
}

// LedgerEvent is the spend of one period of a solved plan.
type LedgerEvent struct {
	RunID     string
	Period    int
	Capital   float64
	Operating float64
	Budget    float64
	Remaining float64
	Incentive float64
	Time      time.Time
}

// LedgerRecorder records per-period budget ledgers.
type LedgerRecorder interface {
	RecordLedger(evs []LedgerEvent) error
}

// ProgressEvent is an incumbent improvement during the search.
type ProgressEvent struct {
	RunID     string
	Nodes     int
	Incumbent float64
	Bound     float64
	Elapsed   time.Duration
	Time      time.Time
}

// ProgressRecorder records search progress.
type ProgressRecorder interface {
	RecordProgress(ev ProgressEvent) error
}

// NopSink implements every recorder and discards all events.
type NopSink struct{}

func (NopSink) RecordRun(RunEvent) error           { return nil }
func (NopSink) RecordLedger([]LedgerEvent) error   { return nil }
func (NopSink) RecordProgress(ProgressEvent) error { return nil }
