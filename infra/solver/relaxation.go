package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

// bigMSteps are the artificial penalties tried in turn by the second phase.
var bigMSteps = []float64{1e3, 1e5, 1e7}

// errArtificial is returned when no penalty drives the artificial columns out
// of the optimal basis although the first phase found a feasible point.
var errArtificial = errors.New("solver: artificial columns stay basic")

// lpRow is a dense constraint row of the relaxation.
type lpRow struct {
	name  string
	coefs []float64
	rel   mip.Relation
	rhs   float64
}

// relaxation is the LP relaxation of a Program in minimisation form.
type relaxation struct {
	n        int
	cost     []float64
	constant float64
	negate   bool
	rows     []lpRow
	// trivial lists empty rows that no point can satisfy.
	trivial []string
	lb, ub  []float64
	integer []bool
	tol     float64
}

func newRelaxation(p *mip.Program, tol float64) *relaxation {
	vars := p.Variables()
	n := len(vars)
	r := &relaxation{
		n:       n,
		cost:    make([]float64, n),
		lb:      make([]float64, n),
		ub:      make([]float64, n),
		integer: make([]bool, n),
		tol:     tol,
	}
	for j, v := range vars {
		r.lb[j], r.ub[j] = v.Lower, v.Upper
		r.integer[j] = v.Domain != mip.Continuous
	}
	obj, sense := p.Objective()
	r.negate = sense == mip.Maximize
	sign := 1.0
	if r.negate {
		sign = -1
	}
	for _, t := range obj.Terms() {
		r.cost[t.Var.ID()-1] += sign * t.Coef
	}
	r.constant = obj.Constant()
	for _, c := range p.Constraints() {
		if loose(c) {
			continue
		}
		coefs := make([]float64, n)
		nonzero := false
		for _, t := range c.Expr.Terms() {
			coefs[t.Var.ID()-1] += t.Coef
		}
		for _, v := range coefs {
			nonzero = nonzero || v != 0
		}
		if !nonzero {
			if !c.Satisfied(0, tol) {
				r.trivial = append(r.trivial, c.Name)
			}
			continue
		}
		r.rows = append(r.rows, lpRow{name: c.Name, coefs: coefs, rel: c.Rel, rhs: c.RHS})
	}
	return r
}

// loose reports rows whose right-hand side is the no-limit sentinel.
func loose(c mip.Constraint) bool {
	switch c.Rel {
	case mip.LessEq:
		return c.RHS >= model.Unbounded
	case mip.GreaterEq:
		return c.RHS <= -model.Unbounded
	}
	return false
}

// objective converts a minimisation value back to the program's sense.
func (r *relaxation) objective(min float64) float64 {
	if r.negate {
		return -min + r.constant
	}
	return min + r.constant
}

// solve optimises cost over the rows not in skip, within [lb, ub]. It
// returns the minimisation objective and the primal point. An all-zero cost
// stops after the first phase with any feasible point.
func (r *relaxation) solve(cost, lb, ub []float64, skip map[int]bool) (float64, []float64, error) {
	f, err := r.standardForm(cost, lb, ub, skip)
	if err != nil {
		return 0, nil, err
	}
	y, err := f.optimize(r.tol)
	if err != nil {
		return 0, nil, err
	}
	x := make([]float64, r.n)
	var obj float64
	for j := range x {
		x[j] = lb[j]
		if c := f.column[j]; c >= 0 {
			x[j] += math.Max(y[c], 0)
		}
		obj += cost[j] * x[j]
	}
	return obj, x, nil
}

// stdForm is min cᵀy s.t. Ay = b, y ≥ 0, b ≥ 0, where y is the shift of the
// relaxation variables by their lower bounds followed by slack and artificial
// columns. basis is an identity basis made of one slack or artificial per
// row.
type stdForm struct {
	a      *mat.Dense
	b      []float64
	cost   []float64
	basis  []int
	arts   []int
	column []int
	cols   int
	costly bool
}

type stdRow struct {
	coefs []float64
	rhs   float64
	slack float64
}

func (r *relaxation) standardForm(cost, lb, ub []float64, skip map[int]bool) (*stdForm, error) {
	used := make([]bool, r.n)
	var kept []int
	for i, row := range r.rows {
		if skip[i] {
			continue
		}
		kept = append(kept, i)
		for j, c := range row.coefs {
			if c != 0 {
				used[j] = true
			}
		}
	}

	f := &stdForm{column: make([]int, r.n)}
	ns := 0
	for j := 0; j < r.n; j++ {
		if lb[j] > ub[j]+r.tol {
			return nil, lp.ErrInfeasible
		}
		if !used[j] && !bounded(ub[j]) {
			if cost[j] < 0 {
				return nil, lp.ErrUnbounded
			}
			f.column[j] = -1
			continue
		}
		f.column[j] = ns
		ns++
	}

	rows := make([]stdRow, 0, len(kept)+ns)
	for _, i := range kept {
		row := r.rows[i]
		coefs := make([]float64, ns)
		rhs, scale := row.rhs, 0.0
		for j, c := range row.coefs {
			if c == 0 {
				continue
			}
			rhs -= c * lb[j]
			coefs[f.column[j]] = c
			scale = math.Max(scale, math.Abs(c))
		}
		for j := range coefs {
			coefs[j] /= scale
		}
		var slack float64
		switch row.rel {
		case mip.LessEq:
			slack = 1
		case mip.GreaterEq:
			slack = -1
		}
		rows = append(rows, stdRow{coefs: coefs, rhs: rhs / scale, slack: slack})
	}
	for j := 0; j < r.n; j++ {
		if f.column[j] < 0 || !bounded(ub[j]) {
			continue
		}
		coefs := make([]float64, ns)
		coefs[f.column[j]] = 1
		rows = append(rows, stdRow{coefs: coefs, rhs: math.Max(ub[j]-lb[j], 0), slack: 1})
	}

	slacks := 0
	for i := range rows {
		if rows[i].rhs < 0 {
			for j := range rows[i].coefs {
				rows[i].coefs[j] = -rows[i].coefs[j]
			}
			rows[i].rhs, rows[i].slack = -rows[i].rhs, -rows[i].slack
		}
		if rows[i].slack != 0 {
			slacks++
		}
	}
	for i := range rows {
		if rows[i].slack <= 0 {
			f.arts = append(f.arts, ns+slacks+len(f.arts))
		}
	}

	m := len(rows)
	f.cols = ns + slacks + len(f.arts)
	f.b = make([]float64, m)
	f.basis = make([]int, m)
	if m > 0 {
		f.a = mat.NewDense(m, f.cols, nil)
	}
	sc, ac := ns, ns+slacks
	for i, row := range rows {
		for j, c := range row.coefs {
			if c != 0 {
				f.a.Set(i, j, c)
			}
		}
		if row.slack != 0 {
			f.a.Set(i, sc, row.slack)
			if row.slack > 0 {
				f.basis[i] = sc
			}
			sc++
		}
		if row.slack <= 0 {
			f.a.Set(i, ac, 1)
			f.basis[i] = ac
			ac++
		}
		f.b[i] = row.rhs
	}

	f.cost = make([]float64, f.cols)
	scale := 0.0
	for j, c := range cost {
		if f.column[j] >= 0 {
			scale = math.Max(scale, math.Abs(c))
		}
	}
	if scale > 0 {
		f.costly = true
		for j, c := range cost {
			if col := f.column[j]; col >= 0 {
				f.cost[col] = c / scale
			}
		}
	}
	return f, nil
}

func bounded(ub float64) bool { return ub < model.Unbounded }

// optimize runs the first phase when the form carries artificial columns,
// then penalises them in the second phase until none stays positive.
func (f *stdForm) optimize(tol float64) ([]float64, error) {
	if len(f.b) == 0 {
		return make([]float64, f.cols), nil
	}
	if len(f.arts) > 0 {
		c := make([]float64, f.cols)
		for _, j := range f.arts {
			c[j] = 1
		}
		y, err := lpSolve(c, f.a, f.b, f.basis, tol)
		if err != nil {
			return nil, err
		}
		if !f.feasible(y) {
			return nil, lp.ErrInfeasible
		}
		if !f.costly {
			return y, nil
		}
	} else if !f.costly {
		y := make([]float64, f.cols)
		for i, j := range f.basis {
			y[j] = f.b[i]
		}
		return y, nil
	}
	if len(f.arts) == 0 {
		return lpSolve(f.cost, f.a, f.b, f.basis, tol)
	}
	for _, big := range bigMSteps {
		c := append([]float64(nil), f.cost...)
		for _, j := range f.arts {
			c[j] = big
		}
		y, err := lpSolve(c, f.a, f.b, f.basis, tol)
		if err != nil {
			return nil, err
		}
		if f.feasible(y) {
			return y, nil
		}
	}
	return nil, errArtificial
}

// feasible reports whether the artificial columns of y are all zero.
func (f *stdForm) feasible(y []float64) bool {
	limit := 1.0
	for _, v := range f.b {
		limit = math.Max(limit, v)
	}
	var sum float64
	for _, j := range f.arts {
		sum += y[j]
	}
	return sum <= 1e-7*limit
}

// simplex solves min cᵀy s.t. Ay = b, y ≥ 0 from the given basis. Panics of
// the simplex implementation come back as errors.
func simplex(c []float64, a *mat.Dense, b []float64, basis []int, tol float64) (y []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			y, err = nil, fmt.Errorf("solver: simplex: %v", r)
		}
	}()
	_, y, err = lp.Simplex(c, a, b, tol, append([]int(nil), basis...))
	if err != nil {
		return nil, err
	}
	if len(y) != len(c) {
		return nil, fmt.Errorf("solver: simplex returned %d values for %d columns", len(y), len(c))
	}
	return y, nil
}

// lpSolve points to the function used to solve each standard form. It can be
// overridden in tests to simulate solver failures.
var lpSolve = simplex
