// Package export writes solved plans as CSV tables, a single JSON document
// and an HTML chart report.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kilianp07/v2gplan/core/solution"
)

// File names written by WriteDir.
const (
	StationsFile = "stations_solution.csv"
	FleetFile    = "chargers_accumulated.csv"
	CoverageFile = "route_coverage.csv"
	AssignFile   = "route_assignment.csv"
	LedgerFile   = "budget_ledger.csv"
	PlanFile     = "plan.json"
	ReportFile   = "plan_report.html"
)

// Format selects the export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	// FormatBoth writes the CSV tables, the JSON document and the HTML
	// report.
	FormatBoth Format = "both"
)

// ParseFormat accepts csv, json or both. The empty string means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON, FormatBoth:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// WriteJSON writes the plan to w in JSON format.
func WriteJSON(w io.Writer, plan *solution.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func btoa(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func writeRows(w io.Writer, header []string, n int, row func(i int) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStationsCSV writes one row per site and period.
func WriteStationsCSV(w io.Writer, plan *solution.Plan) error {
	return writeRows(w, []string{"node", "year", "s", "o", "v2g"}, len(plan.Stations), func(i int) []string {
		s := plan.Stations[i]
		return []string{string(s.Site), strconv.Itoa(int(s.Period)), btoa(s.Active), btoa(s.Opened), ftoa(s.V2GEnergy)}
	})
}

// WriteFleetCSV writes installed and in-service units per site, type and period.
func WriteFleetCSV(w io.Writer, plan *solution.Plan) error {
	return writeRows(w, []string{"node", "charger", "year", "u", "ubar"}, len(plan.Fleet), func(i int) []string {
		f := plan.Fleet[i]
		return []string{string(f.Site), string(f.Charger), strconv.Itoa(int(f.Period)), strconv.Itoa(f.Installed), strconv.Itoa(f.InService)}
	})
}

// WriteCoverageCSV writes the served share of every route and period.
func WriteCoverageCSV(w io.Writer, plan *solution.Plan) error {
	return writeRows(w, []string{"route", "year", "z", "demand", "served"}, len(plan.Coverage), func(i int) []string {
		c := plan.Coverage[i]
		return []string{string(c.Route), strconv.Itoa(int(c.Period)), ftoa(c.Served), ftoa(c.Demand), ftoa(c.ServedEnergy)}
	})
}

// WriteAssignmentCSV writes the non-zero demand shares.
func WriteAssignmentCSV(w io.Writer, plan *solution.Plan) error {
	return writeRows(w, []string{"node", "route", "year", "a"}, len(plan.Assignments), func(i int) []string {
		a := plan.Assignments[i]
		return []string{string(a.Site), string(a.Route), strconv.Itoa(int(a.Period)), ftoa(a.Share)}
	})
}

// WriteLedgerCSV writes the per-period budget ledger with two decimals.
func WriteLedgerCSV(w io.Writer, plan *solution.Plan) error {
	header := []string{"year", "capital", "operating", "spend", "budget", "remaining", "incentive", "incentive_budget", "incentive_remaining"}
	return writeRows(w, header, len(plan.Ledger), func(i int) []string {
		l := plan.Ledger[i]
		return []string{
			strconv.Itoa(int(l.Period)),
			l.Capital.StringFixed(2),
			l.Operating.StringFixed(2),
			l.Spend().StringFixed(2),
			l.Budget.StringFixed(2),
			l.Remaining.StringFixed(2),
			l.Incentive.StringFixed(2),
			l.IncentiveBudget.StringFixed(2),
			l.IncentiveRemaining.StringFixed(2),
		}
	})
}

// WriteDir writes the plan into dir, creating it if needed, and returns the
// paths written.
func WriteDir(dir string, plan *solution.Plan, f Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	write := func(name string, fn func(io.Writer, *solution.Plan) error) error {
		path := filepath.Join(dir, name)
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(file, plan); err != nil {
			_ = file.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := file.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}
	if f == FormatCSV || f == FormatBoth {
		for _, t := range []struct {
			name string
			fn   func(io.Writer, *solution.Plan) error
		}{
			{StationsFile, WriteStationsCSV},
			{FleetFile, WriteFleetCSV},
			{CoverageFile, WriteCoverageCSV},
			{AssignFile, WriteAssignmentCSV},
			{LedgerFile, WriteLedgerCSV},
		} {
			if err := write(t.name, t.fn); err != nil {
				return written, err
			}
		}
	}
	if f == FormatJSON || f == FormatBoth {
		if err := write(PlanFile, WriteJSON); err != nil {
			return written, err
		}
	}
	if f == FormatBoth {
		if err := write(ReportFile, WriteReportHTML); err != nil {
			return written, err
		}
	}
	return written, nil
}
