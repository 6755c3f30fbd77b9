package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/v2gplan/core/factory"
	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/infra/logger"
	"github.com/kilianp07/v2gplan/internal/eventbus"
)

func TestPromSinkRecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	ev := coremetrics.RunEvent{
		Instance:      "corridor",
		Mode:          "benefit",
		Status:        "optimal",
		Solved:        true,
		Objective:     1000,
		Variables:     51,
		Constraints:   40,
		RowsByFamily:  map[string]int{"lifetime": 12},
		SolveDuration: time.Second,
	}
	require.NoError(t, sink.RecordRun(ev))
	ev.Status = "infeasible"
	ev.Solved = false
	ev.Objective = 0
	require.NoError(t, sink.RecordRun(ev))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("optimal", "benefit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("infeasible", "benefit")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(sink.objective.WithLabelValues("corridor", "benefit")), "unsolved runs keep the last objective")
	assert.Equal(t, 51.0, testutil.ToFloat64(sink.size.WithLabelValues("corridor", "variables")))
	assert.Equal(t, 12.0, testutil.ToFloat64(sink.rows.WithLabelValues("corridor", "lifetime")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.solve), "one series per mode")
}

func TestPromSinkRecordLedger(t *testing.T) {
	sink, err := NewPromSinkWithRegistry(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, sink.RecordLedger([]coremetrics.LedgerEvent{{Period: 2030, Remaining: 399.3}}))
	assert.Equal(t, 399.3, testutil.ToFloat64(sink.remaining.WithLabelValues("2030")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, second.RecordRun(coremetrics.RunEvent{Status: "optimal", Mode: "net-cost"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.runs.WithLabelValues("optimal", "net-cost")))
}

func TestFactoryRegistersBuiltins(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)
}

type progressSink struct {
	coremetrics.NopSink
	events chan coremetrics.ProgressEvent
}

func (p *progressSink) RecordProgress(ev coremetrics.ProgressEvent) error {
	p.events <- ev
	return nil
}

func TestProgressCollector(t *testing.T) {
	bus := eventbus.NewTyped[mip.Progress]()
	sink := &progressSink{events: make(chan coremetrics.ProgressEvent, 4)}
	done := StartProgressCollector(context.Background(), bus, sink, "run-1")

	bus.Publish(mip.Progress{Nodes: 3, Incumbent: 18, Bound: 21})
	select {
	case ev := <-sink.events:
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, 3, ev.Nodes)
		assert.Equal(t, 18.0, ev.Incumbent)
	case <-time.After(time.Second):
		t.Fatal("progress not recorded")
	}
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on close")
	}
}

func TestProgressCollectorWithoutRecorder(t *testing.T) {
	done := StartProgressCollector(context.Background(), eventbus.NewTyped[mip.Progress](), runOnlySink{}, "r")
	select {
	case <-done:
	default:
		t.Fatal("expected closed channel")
	}
}

type runOnlySink struct{}

func (runOnlySink) RecordRun(coremetrics.RunEvent) error { return nil }

type warnLog struct {
	logger.NopLogger
	mu    sync.Mutex
	warns []string
}

func (w *warnLog) Warnf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, fmt.Sprintf(format, args...))
}

func (w *warnLog) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.warns...)
}

type brokenRecorder struct{ runOnlySink }

func (brokenRecorder) RecordProgress(coremetrics.ProgressEvent) error {
	return errors.New("influx down")
}

func TestProgressCollectorLogsRecordErrors(t *testing.T) {
	log := &warnLog{}
	orig := collectorLog
	collectorLog = log
	defer func() { collectorLog = orig }()

	bus := eventbus.NewTyped[mip.Progress]()
	done := StartProgressCollector(context.Background(), bus, brokenRecorder{}, "run-7")
	bus.Publish(mip.Progress{Nodes: 1, Incumbent: 5})
	require.Eventually(t, func() bool { return len(log.lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, log.lines()[0], "run-7")
	assert.Contains(t, log.lines()[0], "influx down")

	bus.Close()
	<-done
}
