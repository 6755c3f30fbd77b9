package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/v2gplan/core/model"
	"github.com/kilianp07/v2gplan/core/solution"
)

// WriteReportHTML renders the budget ledger and the served share of every
// route as an HTML page of charts.
func WriteReportHTML(w io.Writer, plan *solution.Plan) error {
	page := components.NewPage()
	page.PageTitle = "Charging infrastructure plan"
	page.AddCharts(ledgerChart(plan), coverageChart(plan))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func ledgerChart(plan *solution.Plan) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Spend per period"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Year"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Amount"}),
	)
	years := make([]string, 0, len(plan.Ledger))
	var capital, operating, budget []opts.BarData
	for _, l := range plan.Ledger {
		years = append(years, fmt.Sprint(l.Period))
		capital = append(capital, opts.BarData{Value: l.Capital.InexactFloat64()})
		operating = append(operating, opts.BarData{Value: l.Operating.InexactFloat64()})
		budget = append(budget, opts.BarData{Value: l.Budget.InexactFloat64()})
	}
	bar.SetXAxis(years).
		AddSeries("Capital", capital).
		AddSeries("Operating", operating).
		AddSeries("Budget", budget)
	return bar
}

func coverageChart(plan *solution.Plan) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Served demand share"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Year"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Share"}),
	)
	periodSet := make(map[model.Period]struct{})
	byRoute := make(map[model.RouteID]map[model.Period]float64)
	for _, c := range plan.Coverage {
		periodSet[c.Period] = struct{}{}
		if byRoute[c.Route] == nil {
			byRoute[c.Route] = make(map[model.Period]float64)
		}
		byRoute[c.Route][c.Period] = c.Served
	}
	periods := make([]model.Period, 0, len(periodSet))
	for t := range periodSet {
		periods = append(periods, t)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	routes := make([]string, 0, len(byRoute))
	for r := range byRoute {
		routes = append(routes, string(r))
	}
	sort.Strings(routes)

	years := make([]string, len(periods))
	for i, t := range periods {
		years[i] = fmt.Sprint(t)
	}
	line.SetXAxis(years)
	for _, r := range routes {
		data := make([]opts.LineData, len(periods))
		for i, t := range periods {
			data[i] = opts.LineData{Value: byRoute[model.RouteID(r)][t]}
		}
		line.AddSeries(r, data)
	}
	return line
}
