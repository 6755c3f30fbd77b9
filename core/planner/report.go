package planner

import (
	"context"
	"time"

	"github.com/kilianp07/v2gplan/core/history"
	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
	coremqtt "github.com/kilianp07/v2gplan/core/mqtt"
)

// report fans the run out to metrics, history and the publisher. Failures are
// logged and never change the outcome of the run.
func (pl *Planner) report(ctx context.Context, res *Result, iis []string, runErr error) {
	// Interrupted runs are still recorded.
	ctx = context.WithoutCancel(ctx)
	ts := pl.now()
	solved := res.Plan != nil

	ev := coremetrics.RunEvent{
		RunID:         res.RunID,
		Instance:      res.Instance,
		Mode:          string(res.Mode),
		Status:        res.Status.String(),
		Bound:         res.Stats.Bound,
		Nodes:         res.Stats.Nodes,
		Variables:     res.Variables,
		Constraints:   res.Constraints,
		Solved:        solved,
		RowsByFamily:  res.RowsByFamily,
		BuildDuration: res.BuildDuration,
		SolveDuration: res.SolveDuration,
		Time:          ts,
	}
	if solved {
		ev.Objective = res.Objective
		ev.Gap = res.Stats.Gap
	}
	if err := pl.sink.RecordRun(ev); err != nil {
		pl.log.Warnf("record run %s: %v", res.RunID, err)
	}
	if lr, ok := pl.sink.(coremetrics.LedgerRecorder); ok && solved {
		if err := lr.RecordLedger(ledgerEvents(res, ts)); err != nil {
			pl.log.Warnf("record ledger %s: %v", res.RunID, err)
		}
	}

	if err := pl.store.Append(ctx, runRecord(res, iis, runErr, ts)); err != nil {
		pl.log.Warnf("history append %s: %v", res.RunID, err)
	}

	msg := coremqtt.PlanMessage{
		RunID:     res.RunID,
		Instance:  res.Instance,
		Mode:      string(res.Mode),
		Status:    res.Status.String(),
		IIS:       iis,
		Timestamp: ts.Unix(),
	}
	if solved {
		msg.Objective = res.Objective
		sum := res.Summary
		msg.Summary = &sum
		msg.Ledger = res.Plan.Ledger
	}
	if err := pl.pub.PublishPlan(ctx, msg); err != nil {
		pl.log.Warnf("publish plan %s: %v", res.RunID, err)
	}
}

func ledgerEvents(res *Result, ts time.Time) []coremetrics.LedgerEvent {
	out := make([]coremetrics.LedgerEvent, 0, len(res.Plan.Ledger))
	for _, l := range res.Plan.Ledger {
		capital, _ := l.Capital.Float64()
		operating, _ := l.Operating.Float64()
		budget, _ := l.Budget.Float64()
		remaining, _ := l.Remaining.Float64()
		incentive, _ := l.Incentive.Float64()
		out = append(out, coremetrics.LedgerEvent{
			RunID:     res.RunID,
			Period:    int(l.Period),
			Capital:   capital,
			Operating: operating,
			Budget:    budget,
			Remaining: remaining,
			Incentive: incentive,
			Time:      ts,
		})
	}
	return out
}

func runRecord(res *Result, iis []string, runErr error, ts time.Time) history.RunRecord {
	rec := history.RunRecord{
		ID:          res.RunID,
		Timestamp:   ts,
		Instance:    res.Instance,
		Mode:        string(res.Mode),
		Status:      res.Status.String(),
		Bound:       res.Stats.Bound,
		Nodes:       res.Stats.Nodes,
		Variables:   res.Variables,
		Constraints: res.Constraints,
		BuildMS:     float64(res.BuildDuration.Microseconds()) / 1000,
		SolveMS:     float64(res.SolveDuration.Microseconds()) / 1000,
		IIS:         iis,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if res.Plan == nil {
		return rec
	}
	rec.Objective = res.Objective
	rec.Gap = res.Stats.Gap
	rec.OpenSites = len(res.Summary.OpenSites)
	rec.TotalSpend = res.Summary.TotalSpend.StringFixed(2)
	rec.Coverage = make(map[string]float64, len(res.Summary.CoverageShare))
	for r, z := range res.Summary.CoverageShare {
		rec.Coverage[string(r)] = z
	}
	return rec
}
