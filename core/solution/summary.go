package solution

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/v2gplan/core/model"
)

// Summary describes the plan at the final period of the horizon.
type Summary struct {
	Objective     float64                   `json:"objective"`
	Period        model.Period              `json:"year"`
	OpenSites     []model.SiteID            `json:"open_sites"`
	UnitsByType   map[model.ChargerID]int   `json:"units_by_type"`
	V2GUnits      int                       `json:"v2g_units"`
	V2GEnergy     float64                   `json:"v2g_energy"`
	CoverageShare map[model.RouteID]float64 `json:"coverage"`
	TotalSpend    decimal.Decimal           `json:"total_spend"`
}

// Summarize builds the final-period summary of plan.
func Summarize(p *model.Problem, plan *Plan, objective float64) Summary {
	last := p.Horizon().Last()
	s := Summary{
		Objective:     objective,
		Period:        last,
		UnitsByType:   make(map[model.ChargerID]int),
		CoverageShare: make(map[model.RouteID]float64),
	}
	for _, st := range plan.Stations {
		if st.Period != last {
			continue
		}
		if st.Active {
			s.OpenSites = append(s.OpenSites, st.Site)
		}
		s.V2GEnergy += st.V2GEnergy
	}
	sort.Slice(s.OpenSites, func(i, j int) bool { return s.OpenSites[i] < s.OpenSites[j] })
	for _, f := range plan.Fleet {
		if f.Period != last {
			continue
		}
		s.UnitsByType[f.Charger] += f.InService
		if c, ok := p.Charger(f.Charger); ok && c.V2G {
			s.V2GUnits += f.InService
		}
	}
	for _, c := range plan.Coverage {
		if c.Period == last {
			s.CoverageShare[c.Route] = c.Served
		}
	}
	s.TotalSpend = decimal.Zero
	for _, l := range plan.Ledger {
		s.TotalSpend = s.TotalSpend.Add(l.Spend())
	}
	return s
}

// WriteText renders the summary for terminals.
func (s Summary) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %.2f\n", s.Objective)
	fmt.Fprintf(&b, "Open sites in %d (%d): %s\n", s.Period, len(s.OpenSites), joinIDs(s.OpenSites))
	b.WriteString("Units in service by type:\n")
	types := make([]string, 0, len(s.UnitsByType))
	for k := range s.UnitsByType {
		types = append(types, string(k))
	}
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(&b, "  %-12s %d\n", k, s.UnitsByType[model.ChargerID(k)])
	}
	fmt.Fprintf(&b, "V2G units: %d, V2G energy: %.0f\n", s.V2GUnits, s.V2GEnergy)
	b.WriteString("Served demand share:\n")
	routes := make([]string, 0, len(s.CoverageShare))
	for r := range s.CoverageShare {
		routes = append(routes, string(r))
	}
	sort.Strings(routes)
	for _, r := range routes {
		fmt.Fprintf(&b, "  %-10s %.2f%%\n", r, 100*s.CoverageShare[model.RouteID(r)])
	}
	fmt.Fprintf(&b, "Total spend: %s\n", s.TotalSpend.StringFixed(2))
	_, err := io.WriteString(w, b.String())
	return err
}

func joinIDs(ids []model.SiteID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
