package formulation

import (
	"fmt"
	"strings"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

// Family names, in emission order.
const (
	FamilyLifetime   = "lifetime"
	FamilyActivation = "activation"
	FamilyUmax       = "umax"
	FamilyPower      = "power"
	FamilyInstMax    = "instmax"
	FamilyBudget     = "budget"
	FamilyAssignment = "assignment"
	FamilyCoverage   = "coverage"
	FamilyV2GCap     = "v2g_cap"
	FamilyV2GMin     = "v2g_min"
	FamilyIncentive  = "incentive"
)

// Row name prefixes that differ from their family name.
const (
	RowOpenLeActive = "open_le_active"
	RowOpenLink     = "open_link"
	RowOpenFirst    = "open_first"
	RowEligibility  = "eligibility"
	RowAssignSum    = "assign_sum"
	RowAssignCap    = "assign_cap"
)

// row is a constraint waiting to be appended to a Builder.
type row struct {
	name string
	expr *mip.Expr
	rel  mip.Relation
	rhs  float64
}

type buffer struct {
	rows []row
}

func (b *buffer) add(name string, e *mip.Expr, rel mip.Relation, rhs float64) {
	b.rows = append(b.rows, row{name: name, expr: e, rel: rel, rhs: rhs})
}

type generator func(p *model.Problem, r *resolver, out *buffer) error

type family struct {
	name string
	gen  generator
}

var families = []family{
	{FamilyLifetime, genLifetime},
	{FamilyActivation, genActivation},
	{FamilyUmax, genUmax},
	{FamilyPower, genPower},
	{FamilyInstMax, genInstMax},
	{FamilyBudget, genBudget},
	{FamilyAssignment, genAssignment},
	{FamilyCoverage, genCoverage},
	{FamilyV2GCap, genV2GCap},
	{FamilyV2GMin, genV2GMin},
	{FamilyIncentive, genIncentive},
}

// Families returns the constraint family names in emission order.
func Families() []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = f.name
	}
	return out
}

var rowFamilies = map[string]string{
	RowOpenLeActive: FamilyActivation,
	RowOpenLink:     FamilyActivation,
	RowOpenFirst:    FamilyActivation,
	RowEligibility:  FamilyAssignment,
	RowAssignSum:    FamilyAssignment,
	RowAssignCap:    FamilyAssignment,
}

// FamilyOf returns the family that emitted the row named name.
func FamilyOf(name string) string {
	prefix := name
	if i := strings.IndexByte(name, '['); i >= 0 {
		prefix = name[:i]
	}
	if f, ok := rowFamilies[prefix]; ok {
		return f
	}
	return prefix
}

// genLifetime ties ubar to the units installed inside the lifetime window:
// ubar[i,k,t] - Σ_{τ∈[start,t]} u[i,k,τ] = 0.
func genLifetime(p *model.Problem, r *resolver, out *buffer) error {
	h := p.Horizon()
	for _, s := range p.Sites() {
		for _, c := range p.Chargers() {
			for _, t := range h.Periods() {
				window, err := h.Window(t, c.Lifetime)
				if err != nil {
					return tagFamily(err, FamilyLifetime)
				}
				e := mip.NewExpr().AddTerm(r.ubar(s.ID, c.ID, t), 1)
				for _, tau := range window {
					e.AddTerm(r.u(s.ID, c.ID, tau), -1)
				}
				out.add(fmt.Sprintf("%s[%s,%s,%d]", FamilyLifetime, s.ID, c.ID, t), e, mip.Equal, 0)
			}
		}
	}
	return nil
}

// genActivation links opening events to upward transitions of s. A site may
// close and reopen; every reopening is an opening event.
func genActivation(p *model.Problem, r *resolver, out *buffer) error {
	h := p.Horizon()
	first := h.First()
	for _, s := range p.Sites() {
		i := s.ID
		for _, t := range h.Periods() {
			out.add(fmt.Sprintf("%s[%s,%d]", RowOpenLeActive, i, t),
				mip.NewExpr().AddTerm(r.o(i, t), 1).AddTerm(r.s(i, t), -1), mip.LessEq, 0)
			prev, ok := h.Prev(t)
			if !ok {
				continue
			}
			out.add(fmt.Sprintf("%s[%s,%d]", RowOpenLink, i, t),
				mip.NewExpr().AddTerm(r.s(i, t), 1).AddTerm(r.s(i, prev), -1).AddTerm(r.o(i, t), -1),
				mip.LessEq, 0)
		}
		out.add(fmt.Sprintf("%s[%s]", RowOpenFirst, i),
			mip.NewExpr().AddTerm(r.s(i, first), 1).AddTerm(r.o(i, first), -1), mip.LessEq, 0)
	}
	return nil
}

func genUmax(p *model.Problem, r *resolver, out *buffer) error {
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			e := mip.NewExpr()
			for _, c := range p.Chargers() {
				e.AddTerm(r.ubar(s.ID, c.ID, t), 1)
			}
			out.add(fmt.Sprintf("%s[%s,%d]", FamilyUmax, s.ID, t), e, mip.LessEq, p.Umax(s.ID))
		}
	}
	return nil
}

// genPower keeps installed power under the grid allowance of an active site:
// Σ_k P_k·ubar[i,k,t] - G[i,t]·s[i,t] ≤ 0.
func genPower(p *model.Problem, r *resolver, out *buffer) error {
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			e := mip.NewExpr()
			for _, c := range p.Chargers() {
				e.AddTerm(r.ubar(s.ID, c.ID, t), c.PowerKW)
			}
			e.AddTerm(r.s(s.ID, t), -p.G(s.ID, t))
			out.add(fmt.Sprintf("%s[%s,%d]", FamilyPower, s.ID, t), e, mip.LessEq, 0)
		}
	}
	return nil
}

func genInstMax(p *model.Problem, r *resolver, out *buffer) error {
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			e := mip.NewExpr()
			for _, c := range p.Chargers() {
				e.AddTerm(r.u(s.ID, c.ID, t), 1)
			}
			out.add(fmt.Sprintf("%s[%s,%d]", FamilyInstMax, s.ID, t), e, mip.LessEq, p.InstMax(s.ID, t))
		}
	}
	return nil
}

// spend returns capital plus operating cost of period t.
func spend(p *model.Problem, r *resolver, t model.Period) *mip.Expr {
	e := mip.NewExpr()
	for _, s := range p.Sites() {
		i := s.ID
		e.AddTerm(r.o(i, t), p.CFix(i, t))
		e.AddTerm(r.s(i, t), p.MFix(i, t))
		for _, c := range p.Chargers() {
			e.AddTerm(r.u(i, c.ID, t), p.CVar(i, c.ID, t))
			e.AddTerm(r.ubar(i, c.ID, t), p.MVar(c.ID, t))
		}
	}
	return e
}

func genBudget(p *model.Problem, r *resolver, out *buffer) error {
	for _, t := range p.Periods() {
		out.add(fmt.Sprintf("%s[%d]", FamilyBudget, t), spend(p, r, t), mip.LessEq, p.Budget(t))
	}
	return nil
}

// genAssignment emits eligibility, coverage aggregation and energy capacity
// rows for demand assignment.
func genAssignment(p *model.Problem, r *resolver, out *buffer) error {
	routes := p.Routes()
	for _, t := range p.Periods() {
		for _, rt := range routes {
			sum := mip.NewExpr()
			for _, s := range p.Sites() {
				a := r.a(s.ID, rt.ID, t)
				elig := 0.0
				if p.Eligible(s.ID, rt.ID) {
					elig = 1
				}
				out.add(fmt.Sprintf("%s[%s,%s,%d]", RowEligibility, s.ID, rt.ID, t),
					mip.NewExpr().AddTerm(a, 1).AddTerm(r.s(s.ID, t), -elig), mip.LessEq, 0)
				sum.AddTerm(a, 1)
			}
			sum.AddTerm(r.z(rt.ID, t), -1)
			out.add(fmt.Sprintf("%s[%s,%d]", RowAssignSum, rt.ID, t), sum, mip.Equal, 0)
		}
		if len(routes) == 0 {
			continue
		}
		for _, s := range p.Sites() {
			e := mip.NewExpr()
			for _, rt := range routes {
				e.AddTerm(r.a(s.ID, rt.ID, t), p.Demand(rt.ID, t))
			}
			for _, c := range p.Chargers() {
				e.AddTerm(r.ubar(s.ID, c.ID, t), -c.Capacity)
			}
			out.add(fmt.Sprintf("%s[%s,%d]", RowAssignCap, s.ID, t), e, mip.LessEq, 0)
		}
	}
	return nil
}

// genCoverage requires one active site per window in the last period.
func genCoverage(p *model.Problem, r *resolver, out *buffer) error {
	last := p.Horizon().Last()
	for _, rt := range p.Routes() {
		for _, w := range rt.Windows {
			e := mip.NewExpr()
			for _, i := range w.Sites {
				if _, ok := p.Site(i); !ok {
					return &model.ConfigError{Table: "windows", Family: FamilyCoverage,
						Key: fmt.Sprintf("%s,%s", rt.ID, w.ID), Reason: fmt.Sprintf("unknown site %s", i)}
				}
				e.AddTerm(r.s(i, last), 1)
			}
			out.add(fmt.Sprintf("%s[%s,%s]", FamilyCoverage, rt.ID, w.ID), e, mip.GreaterEq, 1)
		}
	}
	return nil
}

// genV2GCap bounds V2G energy by the throughput of installed V2G units:
// v[i,t] - Σ_{k∈V2G} PHIeff[i,k,t]·ubar[i,k,t] ≤ 0.
func genV2GCap(p *model.Problem, r *resolver, out *buffer) error {
	v2g := p.V2GChargers()
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			e := mip.NewExpr().AddTerm(r.v(s.ID, t), 1)
			for _, c := range v2g {
				e.AddTerm(r.ubar(s.ID, c.ID, t), -p.PhiEff(s.ID, c.ID, t))
			}
			out.add(fmt.Sprintf("%s[%s,%d]", FamilyV2GCap, s.ID, t), e, mip.LessEq, 0)
		}
	}
	return nil
}

// genV2GMin: Σ_{k∈V2G} ubar[i,k,t] - mMIN[i,t]·s[i,t] ≥ 0.
func genV2GMin(p *model.Problem, r *resolver, out *buffer) error {
	v2g := p.V2GChargers()
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			e := mip.NewExpr()
			for _, c := range v2g {
				e.AddTerm(r.ubar(s.ID, c.ID, t), 1)
			}
			e.AddTerm(r.s(s.ID, t), -p.MMin(s.ID, t))
			out.add(fmt.Sprintf("%s[%s,%d]", FamilyV2GMin, s.ID, t), e, mip.GreaterEq, 0)
		}
	}
	return nil
}

func genIncentive(p *model.Problem, r *resolver, out *buffer) error {
	for _, t := range p.Periods() {
		e := mip.NewExpr()
		sigma := p.Sigma(t)
		for _, s := range p.Sites() {
			e.AddTerm(r.v(s.ID, t), sigma)
		}
		out.add(fmt.Sprintf("%s[%d]", FamilyIncentive, t), e, mip.LessEq, p.IncentiveBudget(t))
	}
	return nil
}
