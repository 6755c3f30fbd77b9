package mip

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Variable is a declared decision variable with its domain and bounds.
type Variable struct {
	Var
	Domain Domain
	Lower  float64
	Upper  float64
}

// Constraint is a declared linear constraint expr rel rhs.
type Constraint struct {
	ID   int
	Name string
	Expr *Expr
	Rel  Relation
	RHS  float64
}

// Family returns the constraint name up to the first '['.
func (c Constraint) Family() string {
	if i := strings.IndexByte(c.Name, '['); i >= 0 {
		return c.Name[:i]
	}
	return c.Name
}

// Satisfied reports whether lhs rel rhs holds within tol.
func (c Constraint) Satisfied(lhs, tol float64) bool {
	switch c.Rel {
	case LessEq:
		return lhs <= c.RHS+tol
	case GreaterEq:
		return lhs >= c.RHS-tol
	default:
		return math.Abs(lhs-c.RHS) <= tol
	}
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s: %s %s %g", c.Name, c.Expr, c.Rel, c.RHS)
}

// Program is an append-only, concurrency-safe store of a MILP. It implements
// Builder; backends embed it and add Optimize and Value.
type Program struct {
	mu          sync.RWMutex
	vars        []Variable
	names       map[string]int
	constraints []Constraint
	objective   *Expr
	sense       Sense
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{names: make(map[string]int), objective: NewExpr()}
}

// AddVariable declares a variable. Binary variables are clamped to [0,1].
func (p *Program) AddVariable(name string, d Domain, lower, upper float64) (Var, error) {
	if d == Binary {
		lower = math.Max(lower, 0)
		upper = math.Min(upper, 1)
	}
	if math.IsInf(lower, 0) || math.IsNaN(lower) || math.IsNaN(upper) || lower > upper {
		return Var{}, fmt.Errorf("%w: %s [%g, %g]", ErrInvalidBounds, name, lower, upper)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.names[name]; dup {
		return Var{}, fmt.Errorf("mip: duplicate variable %s", name)
	}
	v := Var{id: len(p.vars) + 1, name: name}
	p.vars = append(p.vars, Variable{Var: v, Domain: d, Lower: lower, Upper: upper})
	p.names[name] = v.id
	return v, nil
}

// AddConstraint stores the compacted expression with its constant moved to
// the right-hand side.
func (p *Program) AddConstraint(expr *Expr, rel Relation, rhs float64, name string) (ConstraintRef, error) {
	if expr == nil {
		expr = NewExpr()
	}
	e := expr.Compact()
	rhs -= e.constant
	e.constant = 0
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkVars(e); err != nil {
		return ConstraintRef{}, fmt.Errorf("constraint %s: %w", name, err)
	}
	c := Constraint{ID: len(p.constraints) + 1, Name: name, Expr: e, Rel: rel, RHS: rhs}
	p.constraints = append(p.constraints, c)
	return ConstraintRef{ID: c.ID, Name: name}, nil
}

// SetObjective replaces the objective.
func (p *Program) SetObjective(expr *Expr, sense Sense) error {
	if expr == nil {
		expr = NewExpr()
	}
	e := expr.Compact()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkVars(e); err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	p.objective = e
	p.sense = sense
	return nil
}

func (p *Program) checkVars(e *Expr) error {
	for _, t := range e.terms {
		if t.Var.id <= 0 || t.Var.id > len(p.vars) || p.vars[t.Var.id-1].name != t.Var.name {
			return fmt.Errorf("%w: %q", ErrUnknownVar, t.Var.name)
		}
	}
	return nil
}

// Variables returns a snapshot of the declared variables.
func (p *Program) Variables() []Variable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Variable(nil), p.vars...)
}

// Constraints returns a snapshot of the declared constraints.
func (p *Program) Constraints() []Constraint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Constraint(nil), p.constraints...)
}

// ConstraintsByFamily returns the constraints whose Family equals f.
func (p *Program) ConstraintsByFamily(f string) []Constraint {
	var out []Constraint
	for _, c := range p.Constraints() {
		if c.Family() == f {
			out = append(out, c)
		}
	}
	return out
}

// Constraint looks up a constraint by name.
func (p *Program) Constraint(name string) (Constraint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.constraints {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}

// Lookup returns the variable declared under name.
func (p *Program) Lookup(name string) (Variable, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.names[name]
	if !ok {
		return Variable{}, false
	}
	return p.vars[id-1], true
}

// Objective returns the objective expression and sense.
func (p *Program) Objective() (*Expr, Sense) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.objective, p.sense
}

// NumVariables returns the number of declared variables.
func (p *Program) NumVariables() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.vars)
}

// NumConstraints returns the number of declared constraints.
func (p *Program) NumConstraints() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.constraints)
}

// Violation describes a constraint or bound not met by a point.
type Violation struct {
	Name string
	LHS  float64
	Rel  Relation
	RHS  float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %g %s %g violated", v.Name, v.LHS, v.Rel, v.RHS)
}

// Violations evaluates point against every bound, integrality requirement
// and constraint. Variables missing from point are taken as zero.
func (p *Program) Violations(point map[Var]float64, tol float64) []Violation {
	value := func(v Var) float64 { return point[v] }
	var out []Violation
	for _, v := range p.Variables() {
		x := value(v.Var)
		if x < v.Lower-tol {
			out = append(out, Violation{Name: "lb:" + v.name, LHS: x, Rel: GreaterEq, RHS: v.Lower})
		}
		if x > v.Upper+tol {
			out = append(out, Violation{Name: "ub:" + v.name, LHS: x, Rel: LessEq, RHS: v.Upper})
		}
		if v.Domain != Continuous && math.Abs(x-math.Round(x)) > tol {
			out = append(out, Violation{Name: "int:" + v.name, LHS: x, Rel: Equal, RHS: math.Round(x)})
		}
	}
	for _, c := range p.Constraints() {
		lhs := c.Expr.Evaluate(value)
		if !c.Satisfied(lhs, tol) {
			out = append(out, Violation{Name: c.Name, LHS: lhs, Rel: c.Rel, RHS: c.RHS})
		}
	}
	return out
}

// Evaluate returns the objective value at point.
func (p *Program) Evaluate(point map[Var]float64) float64 {
	obj, _ := p.Objective()
	return obj.Evaluate(func(v Var) float64 { return point[v] })
}
