package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/v2gplan/core/model"
)

// Document is a complete instance in one YAML or JSON file.
type Document struct {
	Name     string        `json:"name" yaml:"name"`
	Periods  []int         `json:"periods" yaml:"periods"`
	Sites    []model.Site  `json:"sites" yaml:"sites"`
	Chargers []ChargerSpec `json:"chargers" yaml:"chargers"`
	Routes   []RouteSpec   `json:"routes" yaml:"routes"`
	// Defaults overrides the value of table entries left out, keyed by table name.
	Defaults map[string]float64 `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Tables   map[string][]Entry `json:"tables,omitempty" yaml:"tables,omitempty"`
	Traffic  *TrafficSpec       `json:"traffic,omitempty" yaml:"traffic,omitempty"`
	V2G      *V2GSpec           `json:"v2g,omitempty" yaml:"v2g,omitempty"`
}

// ChargerSpec declares a charger type. When Capacity is zero and
// Utilisation is set, the capacity is derived from power and utilisation.
type ChargerSpec struct {
	model.ChargerType `yaml:",inline"`
	Utilisation       float64 `json:"utilisation,omitempty" yaml:"utilisation,omitempty"`
}

// RouteSpec declares a route with its eligible sites.
type RouteSpec struct {
	model.Route `yaml:",inline"`
	Eligible    []model.SiteID `json:"eligible,omitempty" yaml:"eligible,omitempty"`
}

// Entry is one coefficient; fields outside the table shape stay empty.
type Entry struct {
	Site    model.SiteID    `json:"site,omitempty" yaml:"site,omitempty"`
	Charger model.ChargerID `json:"charger,omitempty" yaml:"charger,omitempty"`
	Route   model.RouteID   `json:"route,omitempty" yaml:"route,omitempty"`
	Period  int             `json:"period,omitempty" yaml:"period,omitempty"`
	Value   float64         `json:"value" yaml:"value"`
}

func (e Entry) key() model.Key {
	return model.Key{Site: e.Site, Charger: e.Charger, Route: e.Route, Period: model.Period(e.Period)}
}

// TrafficSpec derives D for routes and periods without an explicit value.
type TrafficSpec struct {
	KWhPerCharge float64                         `json:"kwh_per_charge" yaml:"kwh_per_charge"`
	Penetration  map[int]float64                 `json:"penetration" yaml:"penetration"`
	Routes       map[string]model.TrafficProfile `json:"routes" yaml:"routes"`
}

// V2GSpec derives PHIeff for V2G charger types from a base potential scaled
// by the policy intensity of each period.
type V2GSpec struct {
	Beta  float64         `json:"beta" yaml:"beta"`
	Max   float64         `json:"max" yaml:"max"`
	Theta map[int]float64 `json:"theta" yaml:"theta"`
	// Base entries carry site, charger and value.
	Base []Entry `json:"base" yaml:"base"`
}

// Format selects the document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor infers the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported instance format %q", filepath.Ext(path))
	}
}

// Decode reads a Document from r. Unknown fields are rejected.
func Decode(r io.Reader, f Format) (*Document, error) {
	var doc Document
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, &model.TableError{Table: "document", Err: err}
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, &model.TableError{Table: "document", Err: err}
		}
	default:
		return nil, fmt.Errorf("unsupported instance format %q", f)
	}
	return &doc, nil
}

// Problem validates the document and builds the instance.
func (d *Document) Problem() (*model.Problem, error) {
	b := model.NewBuilder(d.Name)
	periods := make([]model.Period, len(d.Periods))
	for i, t := range d.Periods {
		periods[i] = model.Period(t)
	}
	b.SetPeriods(periods...)
	for _, s := range d.Sites {
		b.AddSite(s)
	}
	for _, c := range d.Chargers {
		k := c.ChargerType
		if k.Capacity == 0 && c.Utilisation > 0 {
			k.Capacity = model.AnnualCapacity(k.PowerKW, c.Utilisation)
		}
		b.AddCharger(k)
	}
	for _, r := range d.Routes {
		b.AddRoute(r.Route)
		for _, i := range r.Eligible {
			b.SetEligible(i, r.ID)
		}
	}
	for _, name := range sortedKeys(d.Defaults) {
		b.SetDefault(model.TableName(name), d.Defaults[name])
	}
	for _, name := range sortedKeys(d.Tables) {
		for _, e := range d.Tables[name] {
			b.Set(model.TableName(name), e.key(), e.Value)
		}
	}
	d.deriveDemand(b, periods)
	d.deriveV2G(b, periods)
	return b.Build()
}

func (d *Document) deriveDemand(b *model.Builder, periods []model.Period) {
	if d.Traffic == nil {
		return
	}
	for _, rid := range sortedKeys(d.Traffic.Routes) {
		tp := d.Traffic.Routes[rid]
		for _, t := range periods {
			k := model.RoutePeriod(model.RouteID(rid), t)
			if b.Has(model.TableDemand, k) {
				continue
			}
			pen := d.Traffic.Penetration[int(t)]
			b.Set(model.TableDemand, k, model.AnnualDemand(tp, pen, d.Traffic.KWhPerCharge))
		}
	}
}

func (d *Document) deriveV2G(b *model.Builder, periods []model.Period) {
	if d.V2G == nil {
		return
	}
	for _, e := range d.V2G.Base {
		for _, t := range periods {
			k := model.UnitKey(e.Site, e.Charger, t)
			if b.Has(model.TablePhiEff, k) {
				continue
			}
			b.Set(model.TablePhiEff, k, model.EffectiveV2G(e.Value, d.V2G.Max, d.V2G.Beta, d.V2G.Theta[int(t)]))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load reads an instance from path: a directory is loaded as CSV tables, a
// file as a YAML or JSON document chosen by extension.
func Load(path string) (*model.Problem, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return LoadCSVDir(path)
	}
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(bytes.NewReader(data), f)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc.Problem()
}
