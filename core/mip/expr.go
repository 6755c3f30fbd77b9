package mip

import (
	"fmt"
	"strings"
)

// Var is a handle to a declared decision variable. The zero value is not a
// valid handle.
type Var struct {
	id   int
	name string
}

// ID returns the 1-based position of the variable in its program.
func (v Var) ID() int { return v.id }

// Name returns the variable name.
func (v Var) Name() string { return v.name }

// Valid reports whether v was issued by a program.
func (v Var) Valid() bool { return v.id > 0 }

func (v Var) String() string { return v.name }

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression Σ coef·var + constant.
type Expr struct {
	terms    []Term
	constant float64
}

// NewExpr returns an empty expression.
func NewExpr() *Expr { return &Expr{} }

// AddTerm appends coef·v.
func (e *Expr) AddTerm(v Var, coef float64) *Expr {
	e.terms = append(e.terms, Term{Var: v, Coef: coef})
	return e
}

// AddSum appends each variable with coefficient 1.
func (e *Expr) AddSum(vs ...Var) *Expr {
	for _, v := range vs {
		e.AddTerm(v, 1)
	}
	return e
}

// AddWeightedSum appends Σ coefs[i]·vs[i].
func (e *Expr) AddWeightedSum(vs []Var, coefs []float64) *Expr {
	if len(vs) != len(coefs) {
		panic(fmt.Sprintf("mip: %d vars but %d coefficients", len(vs), len(coefs)))
	}
	for i, v := range vs {
		e.AddTerm(v, coefs[i])
	}
	return e
}

// AddExpr appends scale·o.
func (e *Expr) AddExpr(o *Expr, scale float64) *Expr {
	if o == nil {
		return e
	}
	for _, t := range o.terms {
		e.AddTerm(t.Var, t.Coef*scale)
	}
	e.constant += o.constant * scale
	return e
}

// AddConstant adds c to the constant part.
func (e *Expr) AddConstant(c float64) *Expr {
	e.constant += c
	return e
}

// Terms returns a copy of the terms.
func (e *Expr) Terms() []Term {
	return append([]Term(nil), e.terms...)
}

// Constant returns the constant part.
func (e *Expr) Constant() float64 { return e.constant }

// Len returns the number of raw terms.
func (e *Expr) Len() int { return len(e.terms) }

// Coef returns the summed coefficient of v.
func (e *Expr) Coef(v Var) float64 {
	var c float64
	for _, t := range e.terms {
		if t.Var.id == v.id {
			c += t.Coef
		}
	}
	return c
}

// Compact merges repeated variables, keeping first-appearance order, and
// drops zero coefficients.
func (e *Expr) Compact() *Expr {
	pos := make(map[int]int, len(e.terms))
	var merged []Term
	for _, t := range e.terms {
		if i, ok := pos[t.Var.id]; ok {
			merged[i].Coef += t.Coef
			continue
		}
		pos[t.Var.id] = len(merged)
		merged = append(merged, t)
	}
	out := &Expr{constant: e.constant, terms: merged[:0]}
	for _, t := range merged {
		if t.Coef != 0 {
			out.terms = append(out.terms, t)
		}
	}
	return out
}

// Evaluate computes the expression for the given variable values.
func (e *Expr) Evaluate(value func(Var) float64) float64 {
	sum := e.constant
	for _, t := range e.terms {
		sum += t.Coef * value(t.Var)
	}
	return sum
}

func (e *Expr) String() string {
	if len(e.terms) == 0 {
		return fmt.Sprintf("%g", e.constant)
	}
	var b strings.Builder
	for i, t := range e.terms {
		switch {
		case i == 0 && t.Coef < 0:
			b.WriteString("-")
		case i > 0 && t.Coef < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		c := t.Coef
		if c < 0 {
			c = -c
		}
		if c != 1 {
			fmt.Fprintf(&b, "%g ", c)
		}
		b.WriteString(t.Var.name)
	}
	if e.constant != 0 {
		fmt.Fprintf(&b, " + %g", e.constant)
	}
	return b.String()
}
