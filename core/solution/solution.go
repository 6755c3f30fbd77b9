// Package solution reads solved variable values back into per-entity plan
// tables: station activation, installed fleet, route coverage, demand
// assignment and the per-period budget ledger.
package solution

import (
	"fmt"
	"math"

	"github.com/kilianp07/v2gplan/core/formulation"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

// ValueSource returns solved variable values. mip.Solver satisfies it.
type ValueSource interface {
	Value(v mip.Var) (float64, error)
}

// StationRecord is the state of a site in one period.
type StationRecord struct {
	Site      model.SiteID `json:"node"`
	Period    model.Period `json:"year"`
	Active    bool         `json:"s"`
	Opened    bool         `json:"o"`
	V2GEnergy float64      `json:"v2g"`
}

// FleetRecord is the fleet of one charger type at a site in one period.
type FleetRecord struct {
	Site      model.SiteID    `json:"node"`
	Charger   model.ChargerID `json:"charger"`
	Period    model.Period    `json:"year"`
	Installed int             `json:"u"`
	InService int             `json:"ubar"`
}

// CoverageRecord is the served share of a route in one period.
type CoverageRecord struct {
	Route        model.RouteID `json:"route"`
	Period       model.Period  `json:"year"`
	Served       float64       `json:"z"`
	Demand       float64       `json:"demand"`
	ServedEnergy float64       `json:"served_energy"`
}

// AssignmentRecord is a non-zero share of route demand served by a site.
type AssignmentRecord struct {
	Site   model.SiteID  `json:"node"`
	Route  model.RouteID `json:"route"`
	Period model.Period  `json:"year"`
	Share  float64       `json:"a"`
}

// Plan holds the extracted solution.
type Plan struct {
	Stations    []StationRecord    `json:"stations"`
	Fleet       []FleetRecord      `json:"fleet"`
	Coverage    []CoverageRecord   `json:"coverage"`
	Assignments []AssignmentRecord `json:"assignments"`
	Ledger      []LedgerRecord     `json:"ledger"`
}

// ExtractError reports a variable whose value could not be read.
type ExtractError struct {
	Var string
	Err error
}

func (e *ExtractError) Error() string { return fmt.Sprintf("extract %s: %v", e.Var, e.Err) }

func (e *ExtractError) Unwrap() error { return e.Err }

type reader struct {
	src ValueSource
	err error
}

func (r *reader) value(v mip.Var, err error) float64 {
	if r.err != nil {
		return 0
	}
	if err != nil {
		r.err = err
		return 0
	}
	x, err := r.src.Value(v)
	if err != nil {
		r.err = &ExtractError{Var: v.Name(), Err: err}
		return 0
	}
	if math.Abs(x) < 1e-9 {
		return 0
	}
	return x
}

func (r *reader) flag(v mip.Var, err error) bool { return r.value(v, err) > 0.5 }

func (r *reader) count(v mip.Var, err error) int { return int(math.Round(r.value(v, err))) }

// Extract reads every variable of vars from src and assembles the plan.
// Integer and binary values are rounded.
func Extract(p *model.Problem, vars *formulation.Vars, src ValueSource) (*Plan, error) {
	r := &reader{src: src}
	plan := &Plan{}
	for _, s := range p.Sites() {
		for _, t := range p.Periods() {
			plan.Stations = append(plan.Stations, StationRecord{
				Site:      s.ID,
				Period:    t,
				Active:    r.flag(vars.S(s.ID, t)),
				Opened:    r.flag(vars.O(s.ID, t)),
				V2GEnergy: r.value(vars.V(s.ID, t)),
			})
		}
	}
	for _, s := range p.Sites() {
		for _, c := range p.Chargers() {
			for _, t := range p.Periods() {
				plan.Fleet = append(plan.Fleet, FleetRecord{
					Site:      s.ID,
					Charger:   c.ID,
					Period:    t,
					Installed: r.count(vars.U(s.ID, c.ID, t)),
					InService: r.count(vars.UBar(s.ID, c.ID, t)),
				})
			}
		}
	}
	for _, rt := range p.Routes() {
		for _, t := range p.Periods() {
			z := r.value(vars.Z(rt.ID, t))
			d := p.Demand(rt.ID, t)
			plan.Coverage = append(plan.Coverage, CoverageRecord{
				Route: rt.ID, Period: t, Served: z, Demand: d, ServedEnergy: z * d,
			})
			for _, s := range p.Sites() {
				if a := r.value(vars.A(s.ID, rt.ID, t)); a > 0 {
					plan.Assignments = append(plan.Assignments, AssignmentRecord{
						Site: s.ID, Route: rt.ID, Period: t, Share: a,
					})
				}
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	plan.Ledger = BuildLedger(p, plan)
	return plan, nil
}

// Station returns the record of site i in period t.
func (pl *Plan) Station(i model.SiteID, t model.Period) (StationRecord, bool) {
	for _, s := range pl.Stations {
		if s.Site == i && s.Period == t {
			return s, true
		}
	}
	return StationRecord{}, false
}

// Units returns the in-service units of type k at site i in period t.
func (pl *Plan) Units(i model.SiteID, k model.ChargerID, t model.Period) int {
	for _, f := range pl.Fleet {
		if f.Site == i && f.Charger == k && f.Period == t {
			return f.InService
		}
	}
	return 0
}

// Served returns z[p,t].
func (pl *Plan) Served(rt model.RouteID, t model.Period) float64 {
	for _, c := range pl.Coverage {
		if c.Route == rt && c.Period == t {
			return c.Served
		}
	}
	return 0
}
