package metrics

import (
	"context"
	"time"

	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/infra/logger"
	"github.com/kilianp07/v2gplan/internal/eventbus"
)

var collectorLog = logger.New("progress-collector")

// StartProgressCollector subscribes to the solver progress bus and records
// every event on sinks implementing ProgressRecorder. The returned channel is
// closed once the subscription ends, either because ctx is canceled or the
// bus is closed.
func StartProgressCollector(ctx context.Context, bus *eventbus.TypedBus[mip.Progress], sink coremetrics.MetricsSink, runID string) <-chan struct{} {
	r, ok := sink.(coremetrics.ProgressRecorder)
	if bus == nil || !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	sub := bus.Subscribe()
	done := eventbus.Forward(ctx, sub, func(p mip.Progress) {
		err := r.RecordProgress(coremetrics.ProgressEvent{
			RunID:     runID,
			Nodes:     p.Nodes,
			Incumbent: p.Incumbent,
			Bound:     p.Bound,
			Elapsed:   p.Elapsed,
			Time:      time.Now(),
		})
		if err != nil {
			collectorLog.Warnf("record progress of run %s: %v", runID, err)
		}
	})
	go func() {
		<-done
		bus.Unsubscribe(sub)
	}()
	return done
}
