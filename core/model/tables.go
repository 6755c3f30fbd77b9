package model

import (
	"fmt"
	"strings"
)

// TableName identifies a coefficient table.
type TableName string

const (
	TableUmax            TableName = "Umax"
	TableG               TableName = "G"
	TableInstMax         TableName = "INSTMAX"
	TableCFix            TableName = "CFIX"
	TableMFix            TableName = "MFIX"
	TableMMin            TableName = "mMIN"
	TableCVar            TableName = "CVAR"
	TableMVar            TableName = "MVAR"
	TablePhiEff          TableName = "PHIeff"
	TableDemand          TableName = "D"
	TableEligible        TableName = "A"
	TablePriority        TableName = "W_PRIOR"
	TableBudget          TableName = "B"
	TableIncentiveBudget TableName = "B_INC"
	TableSigma           TableName = "sigma"
	TableOmega           TableName = "omega"
)

// Unbounded is the sentinel for caps that carry no configured limit.
const Unbounded = 1e9

// Shape lists the key fields a table is indexed by.
type Shape uint8

const (
	ShapeSite Shape = 1 << iota
	ShapeCharger
	ShapeRoute
	ShapePeriod
)

type tableSpec struct {
	shape Shape
	def   float64
}

var tableSpecs = map[TableName]tableSpec{
	TableUmax:            {shape: ShapeSite, def: Unbounded},
	TableG:               {shape: ShapeSite | ShapePeriod, def: 0},
	TableInstMax:         {shape: ShapeSite | ShapePeriod, def: Unbounded},
	TableCFix:            {shape: ShapeSite | ShapePeriod, def: 0},
	TableMFix:            {shape: ShapeSite | ShapePeriod, def: 0},
	TableMMin:            {shape: ShapeSite | ShapePeriod, def: 0},
	TableCVar:            {shape: ShapeSite | ShapeCharger | ShapePeriod, def: 0},
	TableMVar:            {shape: ShapeCharger | ShapePeriod, def: 0},
	TablePhiEff:          {shape: ShapeSite | ShapeCharger | ShapePeriod, def: 0},
	TableDemand:          {shape: ShapeRoute | ShapePeriod, def: 0},
	TableEligible:        {shape: ShapeSite | ShapeRoute, def: 0},
	TablePriority:        {shape: ShapeRoute, def: 0},
	TableBudget:          {shape: ShapePeriod, def: 0},
	TableIncentiveBudget: {shape: ShapePeriod, def: 0},
	TableSigma:           {shape: ShapePeriod, def: 0},
	TableOmega:           {shape: ShapePeriod, def: 0},
}

// TableNames returns every known table name.
func TableNames() []TableName {
	return []TableName{
		TableUmax, TableG, TableInstMax, TableCFix, TableMFix, TableMMin,
		TableCVar, TableMVar, TablePhiEff, TableDemand, TableEligible,
		TablePriority, TableBudget, TableIncentiveBudget, TableSigma, TableOmega,
	}
}

// DefaultFor returns the value a table yields for a key that has no entry.
// Costs, demand, power, eligibility and budgets default to zero; the caps
// Umax and INSTMAX default to Unbounded.
func DefaultFor(name TableName) (float64, error) {
	spec, ok := tableSpecs[name]
	if !ok {
		return 0, &ConfigError{Table: string(name), Reason: "unknown table"}
	}
	return spec.def, nil
}

// ShapeOf returns the key shape of a table.
func ShapeOf(name TableName) (Shape, bool) {
	spec, ok := tableSpecs[name]
	return spec.shape, ok
}

// Key indexes a coefficient. Fields not part of the table shape stay empty.
type Key struct {
	Site    SiteID
	Charger ChargerID
	Route   RouteID
	Period  Period
}

// SitePeriod builds an (i,t) key.
func SitePeriod(i SiteID, t Period) Key { return Key{Site: i, Period: t} }

// UnitKey builds an (i,k,t) key.
func UnitKey(i SiteID, k ChargerID, t Period) Key { return Key{Site: i, Charger: k, Period: t} }

// ChargerPeriod builds a (k,t) key.
func ChargerPeriod(k ChargerID, t Period) Key { return Key{Charger: k, Period: t} }

// RoutePeriod builds a (p,t) key.
func RoutePeriod(p RouteID, t Period) Key { return Key{Route: p, Period: t} }

// SiteRoute builds an (i,p) key.
func SiteRoute(i SiteID, p RouteID) Key { return Key{Site: i, Route: p} }

// PeriodKey builds a t key.
func PeriodKey(t Period) Key { return Key{Period: t} }

// String prints the set fields of k. Period 0 only shows when no other field
// is set; use Format when the table shape is known.
func (k Key) String() string { return k.Format(k.fields()) }

func (k Key) fields() Shape {
	var s Shape
	if k.Site != "" {
		s |= ShapeSite
	}
	if k.Charger != "" {
		s |= ShapeCharger
	}
	if k.Route != "" {
		s |= ShapeRoute
	}
	if k.Period != 0 || s == 0 {
		s |= ShapePeriod
	}
	return s
}

// Format prints the fields of k that belong to shape s.
func (k Key) Format(s Shape) string {
	var parts []string
	if s&ShapeSite != 0 {
		parts = append(parts, "site="+string(k.Site))
	}
	if s&ShapeCharger != 0 {
		parts = append(parts, "charger="+string(k.Charger))
	}
	if s&ShapeRoute != 0 {
		parts = append(parts, "route="+string(k.Route))
	}
	if s&ShapePeriod != 0 {
		parts = append(parts, fmt.Sprintf("period=%d", int(k.Period)))
	}
	return strings.Join(parts, ",")
}

// keyOf prints k with the shape of table name plus any stray field.
func keyOf(name TableName, k Key) string {
	if k == (Key{}) {
		return "default"
	}
	s, _ := ShapeOf(name)
	return k.Format(s | k.fields())
}

// Table is an immutable coefficient table with an explicit default.
type Table struct {
	name   TableName
	def    float64
	values map[Key]float64
}

// Name returns the table name.
func (t *Table) Name() TableName { return t.name }

// Default returns the value used for absent keys.
func (t *Table) Default() float64 { return t.def }

// Get resolves k, falling back to the table default.
func (t *Table) Get(k Key) float64 {
	if v, ok := t.values[k]; ok {
		return v
	}
	return t.def
}

// Lookup returns the explicit value for k, if any.
func (t *Table) Lookup(k Key) (float64, bool) {
	v, ok := t.values[k]
	return v, ok
}

// Len returns the number of explicit entries.
func (t *Table) Len() int { return len(t.values) }
