package formulation

import (
	"fmt"
	"strings"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

// Mode selects the objective convention.
type Mode string

const (
	// ModeBenefit maximises weighted coverage plus V2G social value.
	ModeBenefit Mode = "benefit"
	// ModeNetCost minimises spend and subsidies net of V2G value and
	// monetised coverage.
	ModeNetCost Mode = "net-cost"
)

// ParseMode accepts "benefit" and "net-cost" (case-insensitive, "netcost"
// and "net_cost" included).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "benefit", "":
		return ModeBenefit, nil
	case "net-cost", "netcost", "net_cost":
		return ModeNetCost, nil
	}
	return "", &model.ConfigError{Table: "objective", Key: s, Reason: "unknown objective mode"}
}

// Weights holds the objective weights that do not come from problem data.
type Weights struct {
	// Alpha monetises one unit of priority-weighted served demand in
	// net-cost mode.
	Alpha float64 `json:"alpha" yaml:"alpha" mapstructure:"alpha"`
}

// AssembleObjective returns the linear objective of the requested mode and
// its optimisation sense. The two modes are not calibrated against each
// other; their optima may differ.
func AssembleObjective(p *model.Problem, vars *Vars, mode Mode, w Weights) (*mip.Expr, mip.Sense, error) {
	if p == nil || vars == nil {
		return nil, mip.Minimize, &model.ConfigError{Table: "objective", Reason: "nil problem or variables"}
	}
	if w.Alpha < 0 {
		return nil, mip.Minimize, &model.ConfigError{Table: "objective", Key: "alpha",
			Reason: fmt.Sprintf("alpha %g < 0", w.Alpha)}
	}
	r := &resolver{vars: vars, family: "objective"}
	var (
		e     *mip.Expr
		sense mip.Sense
	)
	switch mode {
	case ModeBenefit:
		e = mip.NewExpr().AddExpr(coverageValue(p, r), 1).AddExpr(v2gValue(p, r), 1)
		sense = mip.Maximize
	case ModeNetCost:
		e = mip.NewExpr()
		for _, t := range p.Periods() {
			e.AddExpr(spend(p, r, t), 1)
		}
		e.AddExpr(subsidy(p, r), 1)
		e.AddExpr(v2gValue(p, r), -1)
		e.AddExpr(coverageValue(p, r), -w.Alpha)
		sense = mip.Minimize
	default:
		return nil, mip.Minimize, &model.ConfigError{Table: "objective", Key: string(mode), Reason: "unknown objective mode"}
	}
	if r.err != nil {
		return nil, mip.Minimize, r.err
	}
	return e.Compact(), sense, nil
}

// coverageValue is Σ_{p,t} W_PRIOR[p]·D[p,t]·z[p,t].
func coverageValue(p *model.Problem, r *resolver) *mip.Expr {
	e := mip.NewExpr()
	for _, rt := range p.Routes() {
		w := p.Priority(rt.ID)
		for _, t := range p.Periods() {
			e.AddTerm(r.z(rt.ID, t), w*p.Demand(rt.ID, t))
		}
	}
	return e
}

// v2gValue is Σ_{i,t} Omega[t]·v[i,t].
func v2gValue(p *model.Problem, r *resolver) *mip.Expr {
	e := mip.NewExpr()
	for _, t := range p.Periods() {
		omega := p.Omega(t)
		for _, s := range p.Sites() {
			e.AddTerm(r.v(s.ID, t), omega)
		}
	}
	return e
}

// subsidy is Σ_{i,k∈V2G,t} Sigma[t]·PHIeff[i,k,t]·ubar[i,k,t].
func subsidy(p *model.Problem, r *resolver) *mip.Expr {
	e := mip.NewExpr()
	v2g := p.V2GChargers()
	for _, t := range p.Periods() {
		sigma := p.Sigma(t)
		for _, s := range p.Sites() {
			for _, c := range v2g {
				e.AddTerm(r.ubar(s.ID, c.ID, t), sigma*p.PhiEff(s.ID, c.ID, t))
			}
		}
	}
	return e
}
