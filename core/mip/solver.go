// Package mip defines the solver-independent vocabulary used to state a
// mixed-integer linear program: variables, linear expressions, constraints,
// an objective, and the adapter contract an optimisation backend implements.
//
// Formulation code writes into a Builder. A Solver is a Builder that can also
// optimise and report variable values. Program is the in-memory Builder that
// backends embed; it also checks candidate points against every constraint.
package mip

import (
	"context"
	"errors"
	"time"
)

// Domain is the value domain of a variable.
type Domain int

const (
	Continuous Domain = iota
	Integer
	Binary
)

func (d Domain) String() string {
	switch d {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Relation is the comparison of a linear constraint.
type Relation int

const (
	LessEq Relation = iota
	Equal
	GreaterEq
)

func (r Relation) String() string {
	switch r {
	case LessEq:
		return "<="
	case Equal:
		return "="
	case GreaterEq:
		return ">="
	default:
		return "?"
	}
}

// Sense is the optimisation direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "max"
	}
	return "min"
}

// Status is the outcome of Optimize.
type Status int

const (
	StatusUnknown Status = iota
	// StatusOptimal means the search completed within the requested gap.
	StatusOptimal
	// StatusTimeLimit means a limit was reached with an incumbent available.
	StatusTimeLimit
	// StatusNoIncumbent means a limit was reached before any feasible point.
	StatusNoIncumbent
	StatusInfeasible
	StatusUnbounded
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusTimeLimit:
		return "time_limit"
	case StatusNoIncumbent:
		return "no_incumbent"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// HasSolution reports whether variable values can be queried.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusTimeLimit }

// Limits bound a single Optimize call.
type Limits struct {
	// TimeLimit stops the search once exceeded. Zero means no limit.
	TimeLimit time.Duration
	// MIPGap is the relative optimality gap at which the search stops.
	MIPGap float64
	// NodeLimit caps the number of explored nodes. Zero means no limit.
	NodeLimit int
}

// ConstraintRef identifies a declared constraint.
type ConstraintRef struct {
	ID   int
	Name string
}

var (
	// ErrUnknownVar is returned for handles not issued by the program.
	ErrUnknownVar = errors.New("mip: unknown variable")
	// ErrNoSolution is returned by Value when the last status has no incumbent.
	ErrNoSolution = errors.New("mip: no solution available")
	// ErrInvalidBounds is returned for lower > upper or infinite lower bounds.
	ErrInvalidBounds = errors.New("mip: invalid bounds")
)

// Builder receives variables, constraints and the objective.
type Builder interface {
	AddVariable(name string, d Domain, lower, upper float64) (Var, error)
	AddConstraint(expr *Expr, rel Relation, rhs float64, name string) (ConstraintRef, error)
	SetObjective(expr *Expr, sense Sense) error
}

// Solver is the adapter contract of an optimisation backend.
type Solver interface {
	Builder
	// Optimize blocks until the search ends, a limit is hit or ctx is done.
	// Backend failures are returned as StatusError with a non-nil error.
	Optimize(ctx context.Context, lim Limits) (Status, error)
	// Value returns the incumbent value of v. It fails with ErrNoSolution
	// unless the last status HasSolution.
	Value(v Var) (float64, error)
}

// Stats describes the last Optimize call.
type Stats struct {
	Objective float64
	Bound     float64
	Gap       float64
	Nodes     int
	Elapsed   time.Duration
}

// StatsReporter is implemented by solvers that expose search statistics.
type StatsReporter interface {
	Stats() Stats
}

// IISProvider is implemented by solvers able to return the names of an
// irreducible infeasible subset of constraints after an infeasible solve.
type IISProvider interface {
	IIS(ctx context.Context) ([]string, error)
}

// Progress is emitted by backends when the incumbent improves.
type Progress struct {
	Nodes     int
	Incumbent float64
	Bound     float64
	Elapsed   time.Duration
}
