package formulation

import (
	"fmt"
	"math"

	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

type siteKey struct {
	site   model.SiteID
	period model.Period
}

type unitKey struct {
	site    model.SiteID
	charger model.ChargerID
	period  model.Period
}

type assignKey struct {
	site   model.SiteID
	route  model.RouteID
	period model.Period
}

type routeKey struct {
	route  model.RouteID
	period model.Period
}

// Vars is the decision variable registry. It is filled once by Declare and
// read-only afterwards.
type Vars struct {
	active  map[siteKey]mip.Var
	opened  map[siteKey]mip.Var
	install map[unitKey]mip.Var
	fleet   map[unitKey]mip.Var
	assign  map[assignKey]mip.Var
	served  map[routeKey]mip.Var
	v2g     map[siteKey]mip.Var
}

// Declare registers every decision variable of p in b:
//
//	s[i,t] ∈ {0,1}    site active
//	o[i,t] ∈ {0,1}    site opening event
//	u[i,k,t] ∈ ℤ≥0    new units installed
//	ubar[i,k,t] ∈ ℤ≥0 units within their service lifetime
//	a[i,p,t] ∈ [0,1]  share of route demand assigned to a site
//	z[p,t] ∈ [0,1]    share of route demand served
//	v[i,t] ≥ 0        V2G energy delivered
func Declare(p *model.Problem, b mip.Builder) (*Vars, error) {
	vs := &Vars{
		active:  make(map[siteKey]mip.Var),
		opened:  make(map[siteKey]mip.Var),
		install: make(map[unitKey]mip.Var),
		fleet:   make(map[unitKey]mip.Var),
		assign:  make(map[assignKey]mip.Var),
		served:  make(map[routeKey]mip.Var),
		v2g:     make(map[siteKey]mip.Var),
	}
	inf := math.Inf(1)
	add := func(name string, d mip.Domain, lb, ub float64) (mip.Var, error) {
		v, err := b.AddVariable(name, d, lb, ub)
		if err != nil {
			return mip.Var{}, fmt.Errorf("declare %s: %w", name, err)
		}
		return v, nil
	}
	var err error
	for _, t := range p.Periods() {
		for _, s := range p.Sites() {
			i := s.ID
			k := siteKey{i, t}
			if vs.active[k], err = add(fmt.Sprintf("s[%s,%d]", i, t), mip.Binary, 0, 1); err != nil {
				return nil, err
			}
			if vs.opened[k], err = add(fmt.Sprintf("o[%s,%d]", i, t), mip.Binary, 0, 1); err != nil {
				return nil, err
			}
			for _, c := range p.Chargers() {
				uk := unitKey{i, c.ID, t}
				if vs.install[uk], err = add(fmt.Sprintf("u[%s,%s,%d]", i, c.ID, t), mip.Integer, 0, inf); err != nil {
					return nil, err
				}
				if vs.fleet[uk], err = add(fmt.Sprintf("ubar[%s,%s,%d]", i, c.ID, t), mip.Integer, 0, inf); err != nil {
					return nil, err
				}
			}
			for _, r := range p.Routes() {
				ak := assignKey{i, r.ID, t}
				if vs.assign[ak], err = add(fmt.Sprintf("a[%s,%s,%d]", i, r.ID, t), mip.Continuous, 0, 1); err != nil {
					return nil, err
				}
			}
			if vs.v2g[k], err = add(fmt.Sprintf("v[%s,%d]", i, t), mip.Continuous, 0, inf); err != nil {
				return nil, err
			}
		}
		for _, r := range p.Routes() {
			if vs.served[routeKey{r.ID, t}], err = add(fmt.Sprintf("z[%s,%d]", r.ID, t), mip.Continuous, 0, 1); err != nil {
				return nil, err
			}
		}
	}
	return vs, nil
}

func missing(name, key string) error {
	return &model.ConfigError{Table: "variables", Key: key, Reason: fmt.Sprintf("variable %s not declared", name)}
}

// S returns s[i,t].
func (vs *Vars) S(i model.SiteID, t model.Period) (mip.Var, error) {
	v, ok := vs.active[siteKey{i, t}]
	if !ok {
		return v, missing("s", fmt.Sprintf("%s,%d", i, t))
	}
	return v, nil
}

// O returns o[i,t].
func (vs *Vars) O(i model.SiteID, t model.Period) (mip.Var, error) {
	v, ok := vs.opened[siteKey{i, t}]
	if !ok {
		return v, missing("o", fmt.Sprintf("%s,%d", i, t))
	}
	return v, nil
}

// U returns u[i,k,t].
func (vs *Vars) U(i model.SiteID, k model.ChargerID, t model.Period) (mip.Var, error) {
	v, ok := vs.install[unitKey{i, k, t}]
	if !ok {
		return v, missing("u", fmt.Sprintf("%s,%s,%d", i, k, t))
	}
	return v, nil
}

// UBar returns ubar[i,k,t].
func (vs *Vars) UBar(i model.SiteID, k model.ChargerID, t model.Period) (mip.Var, error) {
	v, ok := vs.fleet[unitKey{i, k, t}]
	if !ok {
		return v, missing("ubar", fmt.Sprintf("%s,%s,%d", i, k, t))
	}
	return v, nil
}

// A returns a[i,p,t].
func (vs *Vars) A(i model.SiteID, r model.RouteID, t model.Period) (mip.Var, error) {
	v, ok := vs.assign[assignKey{i, r, t}]
	if !ok {
		return v, missing("a", fmt.Sprintf("%s,%s,%d", i, r, t))
	}
	return v, nil
}

// Z returns z[p,t].
func (vs *Vars) Z(r model.RouteID, t model.Period) (mip.Var, error) {
	v, ok := vs.served[routeKey{r, t}]
	if !ok {
		return v, missing("z", fmt.Sprintf("%s,%d", r, t))
	}
	return v, nil
}

// V returns v[i,t].
func (vs *Vars) V(i model.SiteID, t model.Period) (mip.Var, error) {
	v, ok := vs.v2g[siteKey{i, t}]
	if !ok {
		return v, missing("v", fmt.Sprintf("%s,%d", i, t))
	}
	return v, nil
}

// Len returns the number of registered variables.
func (vs *Vars) Len() int {
	return len(vs.active) + len(vs.opened) + len(vs.install) + len(vs.fleet) +
		len(vs.assign) + len(vs.served) + len(vs.v2g)
}

// resolver wraps Vars for generator code. The first failed lookup sticks and
// is reported by err, tagged with the constraint family.
type resolver struct {
	vars   *Vars
	family string
	err    error
}

func (r *resolver) keep(v mip.Var, err error) mip.Var {
	if err != nil && r.err == nil {
		r.err = tagFamily(err, r.family)
	}
	return v
}

func (r *resolver) s(i model.SiteID, t model.Period) mip.Var { return r.keep(r.vars.S(i, t)) }
func (r *resolver) o(i model.SiteID, t model.Period) mip.Var { return r.keep(r.vars.O(i, t)) }
func (r *resolver) u(i model.SiteID, k model.ChargerID, t model.Period) mip.Var {
	return r.keep(r.vars.U(i, k, t))
}
func (r *resolver) ubar(i model.SiteID, k model.ChargerID, t model.Period) mip.Var {
	return r.keep(r.vars.UBar(i, k, t))
}
func (r *resolver) a(i model.SiteID, p model.RouteID, t model.Period) mip.Var {
	return r.keep(r.vars.A(i, p, t))
}
func (r *resolver) z(p model.RouteID, t model.Period) mip.Var { return r.keep(r.vars.Z(p, t)) }
func (r *resolver) v(i model.SiteID, t model.Period) mip.Var { return r.keep(r.vars.V(i, t)) }

func tagFamily(err error, family string) error {
	if ce, ok := err.(*model.ConfigError); ok {
		cp := *ce
		cp.Family = family
		return &cp
	}
	return fmt.Errorf("family %s: %w", family, err)
}
