package model

import (
	"fmt"
)

// Builder collects sets and coefficients and produces a validated Problem.
// It is not safe for concurrent use.
type Builder struct {
	name      string
	periods   []Period
	sites     []Site
	chargers  []ChargerType
	routes    []Route
	values    map[TableName]map[Key]float64
	overrides map[TableName]float64
	err       error
}

// NewBuilder returns an empty builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		values:    make(map[TableName]map[Key]float64),
		overrides: make(map[TableName]float64),
	}
}

// SetPeriods declares the planning horizon in order.
func (b *Builder) SetPeriods(ps ...Period) *Builder {
	b.periods = append([]Period(nil), ps...)
	return b
}

// AddSite declares a candidate site.
func (b *Builder) AddSite(s Site) *Builder {
	b.sites = append(b.sites, s)
	return b
}

// AddCharger declares a charger type.
func (b *Builder) AddCharger(k ChargerType) *Builder {
	b.chargers = append(b.chargers, k)
	return b
}

// AddRoute declares a route and its coverage windows.
func (b *Builder) AddRoute(r Route) *Builder {
	r.Windows = copyWindows(r.Windows)
	b.routes = append(b.routes, r)
	return b
}

// Set records one coefficient. Keys are validated by Build.
func (b *Builder) Set(name TableName, k Key, v float64) *Builder {
	if _, ok := tableSpecs[name]; !ok {
		b.fail(&ConfigError{Table: string(name), Key: k.String(), Reason: "unknown table"})
		return b
	}
	m, ok := b.values[name]
	if !ok {
		m = make(map[Key]float64)
		b.values[name] = m
	}
	m[k] = v
	return b
}

// SetDefault overrides the value a table yields for keys without an entry,
// e.g. a uniform grid power for every site and period.
func (b *Builder) SetDefault(name TableName, v float64) *Builder {
	if _, ok := tableSpecs[name]; !ok {
		b.fail(&ConfigError{Table: string(name), Reason: "unknown table"})
		return b
	}
	b.overrides[name] = v
	return b
}

// SetEligible marks site i as able to serve route p.
func (b *Builder) SetEligible(i SiteID, p RouteID) *Builder {
	return b.Set(TableEligible, SiteRoute(i, p), 1)
}

// Has reports whether an explicit value exists for k.
func (b *Builder) Has(name TableName, k Key) bool {
	_, ok := b.values[name][k]
	return ok
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the collected data and returns an immutable Problem.
func (b *Builder) Build() (*Problem, error) {
	if b.err != nil {
		return nil, b.err
	}
	h, err := NewHorizon(b.periods)
	if err != nil {
		return nil, err
	}
	p := &Problem{
		name:       b.name,
		horizon:    h,
		siteIdx:    make(map[SiteID]int, len(b.sites)),
		chargerIdx: make(map[ChargerID]int, len(b.chargers)),
		routeIdx:   make(map[RouteID]int, len(b.routes)),
		tables:     make(map[TableName]*Table, len(tableSpecs)),
	}
	if err := p.addEntities(b); err != nil {
		return nil, err
	}
	for name, spec := range tableSpecs {
		def := spec.def
		if v, ok := b.overrides[name]; ok {
			def = v
		}
		values := make(map[Key]float64, len(b.values[name]))
		for k, v := range b.values[name] {
			if err := p.checkKey(name, spec.shape, k); err != nil {
				return nil, err
			}
			if err := checkValue(name, k, v); err != nil {
				return nil, err
			}
			values[k] = v
		}
		if err := checkValue(name, Key{}, def); err != nil {
			return nil, err
		}
		p.tables[name] = &Table{name: name, def: def, values: values}
	}
	if err := p.checkRoutes(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Problem) addEntities(b *Builder) error {
	if len(b.sites) == 0 {
		return &ConfigError{Table: "sites", Reason: "no sites declared"}
	}
	if len(b.chargers) == 0 {
		return &ConfigError{Table: "chargers", Reason: "no charger types declared"}
	}
	for _, s := range b.sites {
		if s.ID == "" {
			return &ConfigError{Table: "sites", Reason: "empty site id"}
		}
		if _, dup := p.siteIdx[s.ID]; dup {
			return &ConfigError{Table: "sites", Key: string(s.ID), Reason: "duplicate site"}
		}
		p.siteIdx[s.ID] = len(p.sites)
		p.sites = append(p.sites, s)
	}
	for _, k := range b.chargers {
		if k.ID == "" {
			return &ConfigError{Table: "chargers", Reason: "empty charger id"}
		}
		if _, dup := p.chargerIdx[k.ID]; dup {
			return &ConfigError{Table: "chargers", Key: string(k.ID), Reason: "duplicate charger type"}
		}
		if k.Lifetime < 1 {
			return &ConfigError{Table: "chargers", Key: string(k.ID), Reason: fmt.Sprintf("lifetime %d < 1", k.Lifetime)}
		}
		if k.PowerKW < 0 || k.Capacity < 0 {
			return &ConfigError{Table: "chargers", Key: string(k.ID), Reason: "power and capacity must be non-negative"}
		}
		p.chargerIdx[k.ID] = len(p.chargers)
		p.chargers = append(p.chargers, k)
	}
	for _, r := range b.routes {
		if r.ID == "" {
			return &ConfigError{Table: "routes", Reason: "empty route id"}
		}
		if _, dup := p.routeIdx[r.ID]; dup {
			return &ConfigError{Table: "routes", Key: string(r.ID), Reason: "duplicate route"}
		}
		p.routeIdx[r.ID] = len(p.routes)
		p.routes = append(p.routes, r)
	}
	return nil
}

func (p *Problem) checkKey(name TableName, shape Shape, k Key) error {
	bad := func(reason string) error {
		return &ConfigError{Table: string(name), Key: keyOf(name, k), Reason: reason}
	}
	if shape&ShapeSite != 0 {
		if _, ok := p.siteIdx[k.Site]; !ok {
			return bad("unknown site")
		}
	} else if k.Site != "" {
		return bad("table is not indexed by site")
	}
	if shape&ShapeCharger != 0 {
		if _, ok := p.chargerIdx[k.Charger]; !ok {
			return bad("unknown charger type")
		}
	} else if k.Charger != "" {
		return bad("table is not indexed by charger type")
	}
	if shape&ShapeRoute != 0 {
		if _, ok := p.routeIdx[k.Route]; !ok {
			return bad("unknown route")
		}
	} else if k.Route != "" {
		return bad("table is not indexed by route")
	}
	if shape&ShapePeriod != 0 {
		if !p.horizon.Contains(k.Period) {
			return bad("period outside horizon")
		}
	} else if k.Period != 0 {
		return bad("table is not indexed by period")
	}
	return nil
}

func checkValue(name TableName, k Key, v float64) error {
	switch name {
	case TableEligible:
		if v != 0 && v != 1 {
			return &ConfigError{Table: string(name), Key: keyOf(name, k), Reason: fmt.Sprintf("eligibility must be 0 or 1, got %v", v)}
		}
	case TablePriority, TableUmax, TableInstMax, TableG, TableDemand:
		if v < 0 {
			return &ConfigError{Table: string(name), Key: keyOf(name, k), Reason: fmt.Sprintf("negative value %v", v)}
		}
	}
	return nil
}

func (p *Problem) checkRoutes() error {
	for _, r := range p.routes {
		if len(p.EligibleSites(r.ID)) == 0 {
			return &ConfigError{Table: string(TableEligible), Key: string(r.ID), Reason: "route has no eligible site"}
		}
		seen := make(map[WindowID]bool, len(r.Windows))
		for _, w := range r.Windows {
			key := string(r.ID) + "/" + string(w.ID)
			if seen[w.ID] {
				return &ConfigError{Table: "windows", Key: key, Reason: "duplicate window"}
			}
			seen[w.ID] = true
			if len(w.Sites) == 0 {
				return &ConfigError{Table: "windows", Key: key, Reason: "empty coverage window"}
			}
			for _, i := range w.Sites {
				if _, ok := p.siteIdx[i]; !ok {
					return &ConfigError{Table: "windows", Key: key, Reason: fmt.Sprintf("unknown site %s", i)}
				}
				if !p.Eligible(i, r.ID) {
					return &ConfigError{Table: "windows", Key: key, Reason: fmt.Sprintf("site %s is not eligible for route", i)}
				}
			}
		}
	}
	return nil
}

// Problem is the validated, read-only planning instance.
type Problem struct {
	name       string
	horizon    Horizon
	sites      []Site
	chargers   []ChargerType
	routes     []Route
	siteIdx    map[SiteID]int
	chargerIdx map[ChargerID]int
	routeIdx   map[RouteID]int
	tables     map[TableName]*Table
}

// Name returns the instance name.
func (p *Problem) Name() string { return p.name }

// Horizon returns the planning horizon.
func (p *Problem) Horizon() Horizon { return p.horizon }

// Periods is a shortcut for Horizon().Periods().
func (p *Problem) Periods() []Period { return p.horizon.Periods() }

// Sites returns the declared sites in declaration order.
func (p *Problem) Sites() []Site { return append([]Site(nil), p.sites...) }

// Chargers returns the declared charger types in declaration order.
func (p *Problem) Chargers() []ChargerType { return append([]ChargerType(nil), p.chargers...) }

// V2GChargers returns the V2G-capable charger types.
func (p *Problem) V2GChargers() []ChargerType {
	var out []ChargerType
	for _, k := range p.chargers {
		if k.V2G {
			out = append(out, k)
		}
	}
	return out
}

// Routes returns the declared routes with copies of their windows.
func (p *Problem) Routes() []Route {
	out := make([]Route, len(p.routes))
	for i, r := range p.routes {
		r.Windows = copyWindows(r.Windows)
		out[i] = r
	}
	return out
}

// Site looks up a site.
func (p *Problem) Site(id SiteID) (Site, bool) {
	i, ok := p.siteIdx[id]
	if !ok {
		return Site{}, false
	}
	return p.sites[i], true
}

// Charger looks up a charger type.
func (p *Problem) Charger(id ChargerID) (ChargerType, bool) {
	i, ok := p.chargerIdx[id]
	if !ok {
		return ChargerType{}, false
	}
	return p.chargers[i], true
}

// Route looks up a route.
func (p *Problem) Route(id RouteID) (Route, bool) {
	i, ok := p.routeIdx[id]
	if !ok {
		return Route{}, false
	}
	r := p.routes[i]
	r.Windows = copyWindows(r.Windows)
	return r, true
}

// Table returns a coefficient table by name.
func (p *Problem) Table(name TableName) (*Table, bool) {
	t, ok := p.tables[name]
	return t, ok
}

func (p *Problem) get(name TableName, k Key) float64 { return p.tables[name].Get(k) }

// EligibleSites returns the sites with A[i,p]=1 in declaration order.
func (p *Problem) EligibleSites(r RouteID) []SiteID {
	var out []SiteID
	for _, s := range p.sites {
		if p.Eligible(s.ID, r) {
			out = append(out, s.ID)
		}
	}
	return out
}

// Eligible returns A[i,p].
func (p *Problem) Eligible(i SiteID, r RouteID) bool {
	return p.get(TableEligible, SiteRoute(i, r)) == 1
}

// Umax returns the cumulative unit cap of site i.
func (p *Problem) Umax(i SiteID) float64 { return p.get(TableUmax, Key{Site: i}) }

// G returns available grid power at site i in period t (kW).
func (p *Problem) G(i SiteID, t Period) float64 { return p.get(TableG, SitePeriod(i, t)) }

// InstMax returns the new-install cap at site i in period t.
func (p *Problem) InstMax(i SiteID, t Period) float64 { return p.get(TableInstMax, SitePeriod(i, t)) }

// CFix returns the one-time opening cost of site i in period t.
func (p *Problem) CFix(i SiteID, t Period) float64 { return p.get(TableCFix, SitePeriod(i, t)) }

// MFix returns the fixed maintenance cost of site i in period t.
func (p *Problem) MFix(i SiteID, t Period) float64 { return p.get(TableMFix, SitePeriod(i, t)) }

// MMin returns the minimum V2G units required at active site i in period t.
func (p *Problem) MMin(i SiteID, t Period) float64 { return p.get(TableMMin, SitePeriod(i, t)) }

// CVar returns the capital cost of one unit of type k at site i in period t.
func (p *Problem) CVar(i SiteID, k ChargerID, t Period) float64 {
	return p.get(TableCVar, UnitKey(i, k, t))
}

// MVar returns the maintenance cost of one installed unit of type k in period t.
func (p *Problem) MVar(k ChargerID, t Period) float64 { return p.get(TableMVar, ChargerPeriod(k, t)) }

// PhiEff returns the effective V2G throughput of one unit. It is zero for
// charger types that are not V2G capable, whatever the table holds.
func (p *Problem) PhiEff(i SiteID, k ChargerID, t Period) float64 {
	if c, ok := p.Charger(k); !ok || !c.V2G {
		return 0
	}
	return p.get(TablePhiEff, UnitKey(i, k, t))
}

// Demand returns D[p,t].
func (p *Problem) Demand(r RouteID, t Period) float64 { return p.get(TableDemand, RoutePeriod(r, t)) }

// Priority returns W_PRIOR[p].
func (p *Problem) Priority(r RouteID) float64 { return p.get(TablePriority, Key{Route: r}) }

// Budget returns the capital plus operating budget B[t].
func (p *Problem) Budget(t Period) float64 { return p.get(TableBudget, PeriodKey(t)) }

// IncentiveBudget returns the V2G incentive pool B_INC[t].
func (p *Problem) IncentiveBudget(t Period) float64 {
	return p.get(TableIncentiveBudget, PeriodKey(t))
}

// Sigma returns the subsidy rate per unit of V2G energy in period t.
func (p *Problem) Sigma(t Period) float64 { return p.get(TableSigma, PeriodKey(t)) }

// Omega returns the social value per unit of V2G energy in period t.
func (p *Problem) Omega(t Period) float64 { return p.get(TableOmega, PeriodKey(t)) }
