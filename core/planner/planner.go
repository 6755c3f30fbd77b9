// Package planner runs one capacity-expansion study end to end: it builds the
// model into a fresh solver, optimises it, extracts the plan and reports the
// run to the configured metrics sink, history store and publisher.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/v2gplan/core/formulation"
	"github.com/kilianp07/v2gplan/core/history"
	coremetrics "github.com/kilianp07/v2gplan/core/metrics"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
	coremqtt "github.com/kilianp07/v2gplan/core/mqtt"
	"github.com/kilianp07/v2gplan/core/solution"
	"github.com/kilianp07/v2gplan/infra/logger"
	"github.com/kilianp07/v2gplan/internal/eventbus"
)

// SolverFactory returns an empty solver for one run. Backends that report
// search progress publish it on progress.
type SolverFactory func(progress eventbus.Publisher[mip.Progress]) mip.Solver

// ProgressObserver consumes the progress bus of a run. The returned channel
// is closed once the observer has drained the bus.
type ProgressObserver func(ctx context.Context, bus *eventbus.TypedBus[mip.Progress], runID string) <-chan struct{}

// Options select the objective and the solver limits of a run.
type Options struct {
	Mode     formulation.Mode
	Weights  formulation.Weights
	Limits   mip.Limits
	Parallel bool
}

// Result is the outcome of a run with a usable incumbent.
type Result struct {
	RunID     string
	Instance  string
	Mode      formulation.Mode
	Status    mip.Status
	Objective float64
	Stats     mip.Stats
	Plan      *solution.Plan
	Summary   solution.Summary

	Variables     int
	Constraints   int
	RowsByFamily  map[string]int
	BuildDuration time.Duration
	SolveDuration time.Duration
}

// SolveError is returned when the search ends without an incumbent. IIS is
// filled for infeasible models when the backend can compute one.
type SolveError struct {
	RunID  string
	Status mip.Status
	IIS    []string
	Err    error
}

func (e *SolveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "solve %s: status %s", e.RunID, e.Status)
	if len(e.IIS) > 0 {
		fmt.Fprintf(&b, " (conflicting constraints: %s)", strings.Join(e.IIS, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *SolveError) Unwrap() error { return e.Err }

// inspector is implemented by solvers embedding mip.Program.
type inspector interface {
	NumVariables() int
	NumConstraints() int
	Constraints() []mip.Constraint
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(l logger.Logger) Option { return func(p *Planner) { p.log = logger.OrNop(l) } }

// WithMetrics sets the sink receiving run, ledger and progress events.
func WithMetrics(s coremetrics.MetricsSink) Option {
	return func(p *Planner) {
		if s != nil {
			p.sink = s
		}
	}
}

// WithHistory sets the store every run is appended to.
func WithHistory(s history.Store) Option {
	return func(p *Planner) {
		if s != nil {
			p.store = s
		}
	}
}

// WithPublisher sets the publisher announcing results.
func WithPublisher(pub coremqtt.PlanPublisher) Option {
	return func(p *Planner) {
		if pub != nil {
			p.pub = pub
		}
	}
}

// WithProgressObserver adds an observer of the search progress bus.
func WithProgressObserver(o ProgressObserver) Option {
	return func(p *Planner) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// Planner orchestrates planning runs. It is safe for concurrent use as long as
// the factory returns independent solvers.
type Planner struct {
	newSolver SolverFactory
	log       logger.Logger
	sink      coremetrics.MetricsSink
	store     history.Store
	pub       coremqtt.PlanPublisher
	observers []ProgressObserver
	now       func() time.Time
	newID     func() string
}

// New returns a Planner using newSolver for every run.
func New(newSolver SolverFactory, opts ...Option) (*Planner, error) {
	if newSolver == nil {
		return nil, errors.New("planner: nil solver factory")
	}
	p := &Planner{
		newSolver: newSolver,
		log:       logger.NopLogger{},
		sink:      coremetrics.NopSink{},
		store:     history.NopStore{},
		pub:       coremqtt.NopPublisher{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Plan builds and solves prob. Configuration errors are returned before any
// solve. A run without an incumbent yields a *SolveError; it is still
// recorded in metrics and history.
func (pl *Planner) Plan(ctx context.Context, prob *model.Problem, opts Options) (*Result, error) {
	if prob == nil {
		return nil, &model.ConfigError{Table: "problem", Reason: "nil problem"}
	}
	mode := opts.Mode
	if mode == "" {
		mode = formulation.ModeBenefit
	}
	res := &Result{RunID: pl.newID(), Instance: prob.Name(), Mode: mode}
	log := pl.log

	bus := eventbus.NewTyped[mip.Progress]()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	waits := []<-chan struct{}{pl.logProgress(runCtx, bus, res.RunID)}
	for _, o := range pl.observers {
		waits = append(waits, o(runCtx, bus, res.RunID))
	}
	drain := func() {
		bus.Close()
		for _, w := range waits {
			<-w
		}
	}

	solver := pl.newSolver(bus)
	start := pl.now()
	vars, err := formulation.Build(ctx, prob, solver, formulation.Options{Parallel: opts.Parallel})
	if err != nil {
		drain()
		return nil, fmt.Errorf("build model: %w", err)
	}
	obj, sense, err := formulation.AssembleObjective(prob, vars, mode, opts.Weights)
	if err != nil {
		drain()
		return nil, fmt.Errorf("assemble objective: %w", err)
	}
	if err := solver.SetObjective(obj, sense); err != nil {
		drain()
		return nil, fmt.Errorf("set objective: %w", err)
	}
	res.BuildDuration = pl.now().Sub(start)
	pl.inspect(solver, res)
	log.Infow("model built", map[string]any{
		"run_id":      res.RunID,
		"instance":    res.Instance,
		"mode":        string(mode),
		"variables":   res.Variables,
		"constraints": res.Constraints,
		"build_ms":    res.BuildDuration.Milliseconds(),
	})

	start = pl.now()
	status, optErr := solver.Optimize(ctx, opts.Limits)
	res.SolveDuration = pl.now().Sub(start)
	drain()
	res.Status = status
	if sr, ok := solver.(mip.StatsReporter); ok {
		res.Stats = sr.Stats()
	}
	if status == mip.StatusError {
		pl.report(ctx, res, nil, optErr)
		return nil, fmt.Errorf("optimize: %w", optErr)
	}
	if !status.HasSolution() {
		serr := &SolveError{RunID: res.RunID, Status: status, Err: optErr}
		if status == mip.StatusInfeasible {
			serr.IIS = pl.iis(ctx, solver)
		}
		pl.report(ctx, res, serr.IIS, serr)
		return nil, serr
	}
	if optErr != nil {
		log.Warnf("search interrupted, keeping incumbent: %v", optErr)
	}

	plan, err := solution.Extract(prob, vars, solver)
	if err != nil {
		return nil, fmt.Errorf("extract plan: %w", err)
	}
	res.Plan = plan
	res.Objective = res.Stats.Objective
	if _, ok := solver.(mip.StatsReporter); !ok {
		res.Objective = obj.Evaluate(func(v mip.Var) float64 {
			x, _ := solver.Value(v)
			return x
		})
	}
	res.Summary = solution.Summarize(prob, plan, res.Objective)
	log.Infow("plan solved", map[string]any{
		"run_id":     res.RunID,
		"status":     status.String(),
		"objective":  res.Objective,
		"gap":        res.Stats.Gap,
		"nodes":      res.Stats.Nodes,
		"open_sites": len(res.Summary.OpenSites),
		"solve_ms":   res.SolveDuration.Milliseconds(),
	})
	pl.report(ctx, res, nil, nil)
	return res, nil
}

func (pl *Planner) logProgress(ctx context.Context, bus *eventbus.TypedBus[mip.Progress], runID string) <-chan struct{} {
	sub := bus.Subscribe()
	return eventbus.Forward(ctx, sub, func(p mip.Progress) {
		pl.log.Debugw("incumbent improved", map[string]any{
			"run_id":    runID,
			"nodes":     p.Nodes,
			"incumbent": p.Incumbent,
			"bound":     p.Bound,
			"elapsed":   p.Elapsed.String(),
		})
	})
}

func (pl *Planner) inspect(s mip.Solver, res *Result) {
	in, ok := s.(inspector)
	if !ok {
		return
	}
	res.Variables = in.NumVariables()
	res.Constraints = in.NumConstraints()
	res.RowsByFamily = make(map[string]int, len(formulation.Families()))
	for _, c := range in.Constraints() {
		res.RowsByFamily[formulation.FamilyOf(c.Name)]++
	}
}

func (pl *Planner) iis(ctx context.Context, s mip.Solver) []string {
	p, ok := s.(mip.IISProvider)
	if !ok {
		return nil
	}
	rows, err := p.IIS(ctx)
	if err != nil {
		pl.log.Warnf("iis: %v", err)
		return nil
	}
	return rows
}
