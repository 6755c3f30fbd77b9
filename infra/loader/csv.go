package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kilianp07/v2gplan/core/model"
)

// Column names shared by the CSV files.
const (
	colSite    = "node_id"
	colCharger = "charger_type"
	colRoute   = "route_id"
	colWindow  = "window_id"
	colPeriod  = "year"
)

// tableFile maps one coefficient file onto a model table.
type tableFile struct {
	file     string
	table    model.TableName
	keys     []string
	value    string
	required bool
}

var tableFiles = []tableFile{
	{file: "D_p_t.csv", table: model.TableDemand, keys: []string{colRoute, colPeriod}, value: "D", required: true},
	{file: "CFIX_i_t.csv", table: model.TableCFix, keys: []string{colSite, colPeriod}, value: "CFIX", required: true},
	{file: "CVAR_i_k_t.csv", table: model.TableCVar, keys: []string{colSite, colCharger, colPeriod}, value: "CVAR", required: true},
	{file: "G_i_t.csv", table: model.TableG, keys: []string{colSite, colPeriod}, value: "G_kW", required: true},
	{file: "Umax_i.csv", table: model.TableUmax, keys: []string{colSite}, value: "Umax", required: true},
	{file: "B_t.csv", table: model.TableBudget, keys: []string{colPeriod}, value: "B", required: true},
	{file: "INSTMAX_i_t.csv", table: model.TableInstMax, keys: []string{colSite, colPeriod}, value: "INSTMAX", required: true},
	{file: "MFIX_i_t.csv", table: model.TableMFix, keys: []string{colSite, colPeriod}, value: "MFIX", required: true},
	{file: "MVAR_k_t.csv", table: model.TableMVar, keys: []string{colCharger, colPeriod}, value: "MVAR", required: true},
	{file: "PHIeff_i_k_t.csv", table: model.TablePhiEff, keys: []string{colSite, colCharger, colPeriod}, value: "PHIeff", required: true},
	{file: "mMIN_i_t.csv", table: model.TableMMin, keys: []string{colSite, colPeriod}, value: "mMIN", required: true},
	{file: "W_PRIOR_p.csv", table: model.TablePriority, keys: []string{colRoute}, value: "W", required: true},
	{file: "omega_t.csv", table: model.TableOmega, keys: []string{colPeriod}, value: "omega", required: true},
	{file: "B_INC_t.csv", table: model.TableIncentiveBudget, keys: []string{colPeriod}, value: "B_INC"},
	{file: "sigma_t.csv", table: model.TableSigma, keys: []string{colPeriod}, value: "sigma"},
}

// RequiredFiles lists the CSV files LoadCSVDir cannot do without.
func RequiredFiles() []string {
	out := []string{"nodes.csv", "routes.csv", "chargers.csv", "windows.csv", "A_ip.csv"}
	for _, f := range tableFiles {
		if f.required {
			out = append(out, f.file)
		}
	}
	return out
}

// sheet is a parsed CSV file with columns addressed by header name.
type sheet struct {
	name string
	cols map[string]int
	rows [][]string
}

func readSheet(dir, file string, required bool) (*sheet, error) {
	table := strings.TrimSuffix(file, ".csv")
	f, err := os.Open(filepath.Join(dir, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if required {
				return nil, &model.TableError{Table: table, Missing: true, Err: err}
			}
			return nil, nil
		}
		return nil, &model.TableError{Table: table, Err: err}
	}
	defer func() { _ = f.Close() }()
	return parseSheet(table, f)
}

func parseSheet(table string, r io.Reader) (*sheet, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &model.TableError{Table: table, Row: pe.Line, Err: pe.Err}
		}
		return nil, &model.TableError{Table: table, Err: err}
	}
	if len(records) == 0 {
		return nil, &model.TableError{Table: table, Err: fmt.Errorf("empty file, header expected")}
	}
	s := &sheet{name: table, cols: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, h := range records[0] {
		s.cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return s, nil
}

func (s *sheet) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := s.cols[c]; !ok {
			return &model.TableError{Table: s.name, Row: 1, Err: fmt.Errorf("missing column %q", c)}
		}
	}
	return nil
}

// each calls fn with the 1-based file line of every data row.
func (s *sheet) each(fn func(line int, row record) error) error {
	for i, r := range s.rows {
		line := i + 2
		if err := fn(line, record{s: s, row: r}); err != nil {
			var te *model.TableError
			if errors.As(err, &te) {
				return err
			}
			return &model.TableError{Table: s.name, Row: line, Err: err}
		}
	}
	return nil
}

type record struct {
	s   *sheet
	row []string
}

func (r record) str(col string) string {
	i, ok := r.s.cols[col]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r record) number(col string) (float64, error) {
	v := r.str(col)
	if v == "" {
		return 0, fmt.Errorf("empty %s", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", col, err)
	}
	return f, nil
}

func (r record) integer(col string) (int, error) {
	f, err := r.number(col)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("column %s: %v is not an integer", col, f)
	}
	return int(f), nil
}

func (r record) flag(col string) (bool, error) {
	switch strings.ToLower(r.str(col)) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no", "":
		return false, nil
	default:
		return false, fmt.Errorf("column %s: invalid boolean %q", col, r.str(col))
	}
}

func (r record) key(cols []string) (model.Key, error) {
	var k model.Key
	for _, c := range cols {
		v := r.str(c)
		if v == "" {
			return k, fmt.Errorf("empty %s", c)
		}
		switch c {
		case colSite:
			k.Site = model.SiteID(v)
		case colCharger:
			k.Charger = model.ChargerID(v)
		case colRoute:
			k.Route = model.RouteID(v)
		case colPeriod:
			t, err := r.integer(c)
			if err != nil {
				return k, err
			}
			k.Period = model.Period(t)
		}
	}
	return k, nil
}

// LoadCSVDir reads an instance from a directory holding one CSV file per
// entity set and coefficient table. The horizon is the sorted set of years in
// D_p_t.csv.
func LoadCSVDir(dir string) (*model.Problem, error) {
	b := model.NewBuilder(filepath.Base(filepath.Clean(dir)))

	nodes, err := readSheet(dir, "nodes.csv", true)
	if err != nil {
		return nil, err
	}
	if err := nodes.require(colSite); err != nil {
		return nil, err
	}
	if err := nodes.each(func(_ int, r record) error {
		id := r.str(colSite)
		if id == "" {
			return fmt.Errorf("empty %s", colSite)
		}
		b.AddSite(model.Site{ID: model.SiteID(id), Name: r.str("name")})
		return nil
	}); err != nil {
		return nil, err
	}

	chargers, err := readSheet(dir, "chargers.csv", true)
	if err != nil {
		return nil, err
	}
	if err := chargers.require(colCharger, "P_k", "L_k", "CAP_k", "is_v2g"); err != nil {
		return nil, err
	}
	if err := chargers.each(func(_ int, r record) error {
		k := model.ChargerType{ID: model.ChargerID(r.str(colCharger))}
		if k.PowerKW, err = r.number("P_k"); err != nil {
			return err
		}
		if k.Lifetime, err = r.integer("L_k"); err != nil {
			return err
		}
		if k.Capacity, err = r.number("CAP_k"); err != nil {
			return err
		}
		if k.V2G, err = r.flag("is_v2g"); err != nil {
			return err
		}
		b.AddCharger(k)
		return nil
	}); err != nil {
		return nil, err
	}

	routes, err := loadRoutes(dir)
	if err != nil {
		return nil, err
	}
	for _, rt := range routes {
		b.AddRoute(rt)
	}

	elig, err := readSheet(dir, "A_ip.csv", true)
	if err != nil {
		return nil, err
	}
	if err := elig.require(colSite, colRoute, "A"); err != nil {
		return nil, err
	}
	if err := elig.each(func(_ int, r record) error {
		a, err := r.number("A")
		if err != nil {
			return err
		}
		b.Set(model.TableEligible, model.SiteRoute(model.SiteID(r.str(colSite)), model.RouteID(r.str(colRoute))), a)
		return nil
	}); err != nil {
		return nil, err
	}

	years := make(map[model.Period]bool)
	for _, tf := range tableFiles {
		s, err := readSheet(dir, tf.file, tf.required)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		if err := s.require(append(append([]string(nil), tf.keys...), tf.value)...); err != nil {
			return nil, err
		}
		if err := s.each(func(_ int, r record) error {
			k, err := r.key(tf.keys)
			if err != nil {
				return err
			}
			v, err := r.number(tf.value)
			if err != nil {
				return err
			}
			if tf.table == model.TableDemand {
				years[k.Period] = true
			}
			b.Set(tf.table, k, v)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	periods := make([]model.Period, 0, len(years))
	for t := range years {
		periods = append(periods, t)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	b.SetPeriods(periods...)
	return b.Build()
}

// loadRoutes joins routes.csv with the window membership rows of windows.csv.
func loadRoutes(dir string) ([]model.Route, error) {
	routes, err := readSheet(dir, "routes.csv", true)
	if err != nil {
		return nil, err
	}
	if err := routes.require(colRoute); err != nil {
		return nil, err
	}
	var out []model.Route
	idx := make(map[model.RouteID]int)
	if err := routes.each(func(_ int, r record) error {
		id := model.RouteID(r.str(colRoute))
		if id == "" {
			return fmt.Errorf("empty %s", colRoute)
		}
		idx[id] = len(out)
		out = append(out, model.Route{ID: id, Name: r.str("name")})
		return nil
	}); err != nil {
		return nil, err
	}

	windows, err := readSheet(dir, "windows.csv", true)
	if err != nil {
		return nil, err
	}
	if err := windows.require(colRoute, colWindow, colSite); err != nil {
		return nil, err
	}
	if err := windows.each(func(_ int, r record) error {
		rid := model.RouteID(r.str(colRoute))
		i, ok := idx[rid]
		if !ok {
			return fmt.Errorf("unknown route %s", rid)
		}
		wid := model.WindowID(r.str(colWindow))
		site := model.SiteID(r.str(colSite))
		if wid == "" || site == "" {
			return fmt.Errorf("empty %s or %s", colWindow, colSite)
		}
		rt := &out[i]
		for w := range rt.Windows {
			if rt.Windows[w].ID == wid {
				rt.Windows[w].Sites = append(rt.Windows[w].Sites, site)
				return nil
			}
		}
		rt.Windows = append(rt.Windows, model.Window{ID: wid, Sites: []model.SiteID{site}})
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}
