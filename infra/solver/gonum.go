// Package solver provides the optimisation backend of the planner: a
// depth-first branch-and-bound over LP relaxations solved with gonum's simplex
// implementation.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/infra/logger"
	"github.com/kilianp07/v2gplan/internal/eventbus"
)

const (
	// DefaultTolerance is the simplex and integrality tolerance.
	DefaultTolerance = 1e-8
	// DefaultMaxIISRows caps the number of rows the IIS filter will examine.
	DefaultMaxIISRows = 400
	intTol            = 1e-6
)

// ErrIISUnavailable is returned by IIS when no subset can be computed.
var ErrIISUnavailable = errors.New("solver: IIS unavailable")

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option { return func(b *Backend) { b.log = logger.OrNop(l) } }

// WithProgress publishes a mip.Progress event every time the incumbent
// improves.
func WithProgress(p eventbus.Publisher[mip.Progress]) Option {
	return func(b *Backend) { b.progress = p }
}

// WithTolerance overrides DefaultTolerance.
func WithTolerance(tol float64) Option {
	return func(b *Backend) {
		if tol > 0 {
			b.tol = tol
		}
	}
}

// WithMaxIISRows overrides DefaultMaxIISRows.
func WithMaxIISRows(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.maxIIS = n
		}
	}
}

// Backend implements mip.Solver, mip.StatsReporter and mip.IISProvider.
type Backend struct {
	*mip.Program

	log      logger.Logger
	progress eventbus.Publisher[mip.Progress]
	tol      float64
	maxIIS   int

	mu     sync.Mutex
	status mip.Status
	values []float64
	stats  mip.Stats
}

// New returns an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		Program: mip.NewProgram(),
		log:     logger.NopLogger{},
		tol:     DefaultTolerance,
		maxIIS:  DefaultMaxIISRows,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

type node struct {
	lb, ub []float64
	// bound is the relaxation value of the parent, a lower bound for the node.
	bound float64
}

func (n node) child() node {
	return node{
		lb:    append([]float64(nil), n.lb...),
		ub:    append([]float64(nil), n.ub...),
		bound: n.bound,
	}
}

// Optimize runs branch-and-bound until the tree is exhausted, the relative
// gap drops to lim.MIPGap, a limit is reached or ctx is done. When ctx ends
// the search, the limit status is returned together with ctx.Err().
func (b *Backend) Optimize(ctx context.Context, lim mip.Limits) (mip.Status, error) {
	start := time.Now()
	relax := newRelaxation(b.Program, b.tol)
	b.reset()

	if len(relax.trivial) > 0 {
		b.log.Warnf("row %s cannot be satisfied by any point", relax.trivial[0])
		return b.finish(mip.StatusInfeasible, nil, 0, 0, 0, start), nil
	}
	if relax.n == 0 {
		return b.finish(mip.StatusOptimal, []float64{}, 0, 0, 0, start), nil
	}

	var (
		best      = math.Inf(1)
		incumbent []float64
		nodes     int
		limitHit  bool
		ctxErr    error
		stack     = []node{{lb: relax.lb, ub: relax.ub, bound: math.Inf(-1)}}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			ctxErr, limitHit = err, true
			break
		}
		if (lim.TimeLimit > 0 && time.Since(start) >= lim.TimeLimit) || (lim.NodeLimit > 0 && nodes >= lim.NodeLimit) {
			limitHit = true
			break
		}
		if incumbent != nil && lim.MIPGap > 0 && relGap(best, openBound(stack)) <= lim.MIPGap {
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if nd.bound >= best-b.pruneTol(best) {
			continue
		}
		nodes++
		obj, x, err := relax.solve(relax.cost, nd.lb, nd.ub, nil)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			continue
		case errors.Is(err, lp.ErrUnbounded):
			b.log.Warnf("relaxation unbounded at node %d", nodes)
			return b.finish(mip.StatusUnbounded, nil, 0, math.Inf(-1), nodes, start), nil
		case err != nil:
			b.finish(mip.StatusError, nil, 0, 0, nodes, start)
			return mip.StatusError, fmt.Errorf("solver: node %d: %w", nodes, err)
		}
		if obj >= best-b.pruneTol(best) {
			continue
		}
		j := branchVar(relax, x)
		if j < 0 {
			best, incumbent = obj, roundIntegers(relax, x)
			b.improved(relax, best, openBound(stack), nodes, start)
			continue
		}
		f := math.Floor(x[j])
		down, up := nd.child(), nd.child()
		down.bound, up.bound = obj, obj
		down.ub[j] = f
		up.lb[j] = f + 1
		stack = append(stack, down, up)
	}

	bound := best
	if len(stack) > 0 {
		bound = math.Min(best, openBound(stack))
	}
	var status mip.Status
	switch {
	case limitHit && incumbent != nil:
		status = mip.StatusTimeLimit
	case limitHit:
		status = mip.StatusNoIncumbent
	case incumbent != nil:
		status = mip.StatusOptimal
	default:
		status = mip.StatusInfeasible
	}
	b.finish(status, incumbent, best, bound, nodes, start)
	b.log.Debugw("branch-and-bound finished", map[string]any{
		"status": status.String(), "nodes": nodes, "elapsed_ms": time.Since(start).Milliseconds(),
	})
	if ctxErr != nil {
		return status, fmt.Errorf("solver: %w", ctxErr)
	}
	return status, nil
}

func (b *Backend) pruneTol(best float64) float64 {
	if math.IsInf(best, 1) {
		return 0
	}
	return b.tol * math.Max(1, math.Abs(best))
}

func (b *Backend) reset() {
	b.mu.Lock()
	b.status, b.values, b.stats = mip.StatusUnknown, nil, mip.Stats{}
	b.mu.Unlock()
}

// finish records the outcome. best and bound are in minimisation form.
func (b *Backend) finish(status mip.Status, x []float64, best, bound float64, nodes int, start time.Time) mip.Status {
	relaxSense := b.sense()
	toUser := func(v float64) float64 {
		if relaxSense == mip.Maximize {
			return -v
		}
		return v
	}
	obj, _ := b.Objective()
	st := mip.Stats{Nodes: nodes, Elapsed: time.Since(start)}
	if status.HasSolution() {
		st.Objective = toUser(best) + obj.Constant()
		st.Bound = toUser(bound) + obj.Constant()
		st.Gap = relGap(best, bound)
	}
	b.mu.Lock()
	b.status, b.values, b.stats = status, x, st
	b.mu.Unlock()
	return status
}

func (b *Backend) sense() mip.Sense {
	_, s := b.Objective()
	return s
}

func (b *Backend) improved(relax *relaxation, best, bound float64, nodes int, start time.Time) {
	ev := mip.Progress{
		Nodes:     nodes,
		Incumbent: relax.objective(best),
		Bound:     relax.objective(math.Min(best, bound)),
		Elapsed:   time.Since(start),
	}
	b.log.Debugw("new incumbent", map[string]any{"nodes": nodes, "objective": ev.Incumbent})
	if b.progress != nil {
		b.progress.Publish(ev)
	}
}

// Value returns the incumbent value of v.
func (b *Backend) Value(v mip.Var) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.status.HasSolution() {
		return 0, fmt.Errorf("%w (status %s)", mip.ErrNoSolution, b.status)
	}
	if v.ID() <= 0 || v.ID() > len(b.values) {
		return 0, fmt.Errorf("%w: %q", mip.ErrUnknownVar, v.Name())
	}
	return b.values[v.ID()-1], nil
}

// Status returns the outcome of the last Optimize call.
func (b *Backend) Status() mip.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Stats returns the statistics of the last Optimize call.
func (b *Backend) Stats() mip.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// IIS returns the names of an irreducible infeasible subset of constraints of
// the LP relaxation, found with a deletion filter. It returns nil when the
// relaxation is feasible, so the infeasibility comes from integrality alone.
func (b *Backend) IIS(ctx context.Context) ([]string, error) {
	if s := b.Status(); s != mip.StatusInfeasible {
		return nil, fmt.Errorf("%w: last status is %s", ErrIISUnavailable, s)
	}
	relax := newRelaxation(b.Program, b.tol)
	if len(relax.trivial) > 0 {
		return relax.trivial[:1], nil
	}
	if len(relax.rows) > b.maxIIS {
		return nil, fmt.Errorf("%w: %d rows exceed the limit of %d", ErrIISUnavailable, len(relax.rows), b.maxIIS)
	}
	zero := make([]float64, relax.n)
	feasible := func(skip map[int]bool) (bool, error) {
		_, _, err := relax.solve(zero, relax.lb, relax.ub, skip)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return false, nil
		case err != nil:
			return false, err
		}
		return true, nil
	}
	ok, err := feasible(nil)
	if err != nil {
		return nil, fmt.Errorf("solver: iis: %w", err)
	}
	if ok {
		return nil, nil
	}
	skip := make(map[int]bool, len(relax.rows))
	for i := range relax.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		skip[i] = true
		ok, err := feasible(skip)
		if err != nil {
			return nil, fmt.Errorf("solver: iis: %w", err)
		}
		if ok {
			delete(skip, i)
		}
	}
	var out []string
	for i, r := range relax.rows {
		if !skip[i] {
			out = append(out, r.name)
		}
	}
	return out, nil
}

// branchVar returns the most fractional integer variable of x, or -1.
func branchVar(r *relaxation, x []float64) int {
	best, idx := intTol, -1
	for j, v := range x {
		if !r.integer[j] {
			continue
		}
		frac := math.Abs(v - math.Round(v))
		if frac > best {
			best, idx = frac, j
		}
	}
	return idx
}

func roundIntegers(r *relaxation, x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if r.integer[j] {
			v = math.Round(v)
		}
		if math.Abs(v) < r.tol {
			v = 0
		}
		out[j] = v
	}
	return out
}

func openBound(stack []node) float64 {
	b := math.Inf(1)
	for _, n := range stack {
		b = math.Min(b, n.bound)
	}
	return b
}

// relGap is the relative distance between an incumbent and a lower bound,
// both in minimisation form.
func relGap(best, bound float64) float64 {
	if math.IsInf(bound, 1) || bound >= best {
		return 0
	}
	if math.IsInf(bound, -1) {
		return math.Inf(1)
	}
	return (best - bound) / math.Max(math.Abs(best), 1e-10)
}
