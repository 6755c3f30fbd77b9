package solution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/v2gplan/core/formulation"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
)

type mapSource map[string]float64

func (m mapSource) Value(v mip.Var) (float64, error) { return m[v.Name()], nil }

type failingSource struct{}

func (failingSource) Value(mip.Var) (float64, error) { return 0, mip.ErrNoSolution }

func instance(t *testing.T) (*model.Problem, *formulation.Vars) {
	t.Helper()
	p, err := model.NewBuilder("ledger").
		SetPeriods(2030, 2031).
		AddSite(model.Site{ID: "S1"}).
		AddSite(model.Site{ID: "S2"}).
		AddCharger(model.ChargerType{ID: "dc", PowerKW: 50, Lifetime: 2, Capacity: 1000}).
		AddCharger(model.ChargerType{ID: "bi", PowerKW: 11, Lifetime: 2, Capacity: 100, V2G: true}).
		AddRoute(model.Route{ID: "R1"}).
		SetEligible("S1", "R1").
		Set(model.TableCFix, model.SitePeriod("S1", 2030), 1000.10).
		Set(model.TableMFix, model.SitePeriod("S1", 2031), 20.20).
		Set(model.TableCVar, model.UnitKey("S1", "dc", 2030), 300.30).
		Set(model.TableMVar, model.ChargerPeriod("dc", 2031), 0.1).
		Set(model.TableBudget, model.PeriodKey(2030), 2000).
		Set(model.TableBudget, model.PeriodKey(2031), 100).
		Set(model.TableSigma, model.PeriodKey(2031), 0.5).
		Set(model.TableIncentiveBudget, model.PeriodKey(2031), 10).
		Set(model.TableDemand, model.RoutePeriod("R1", 2031), 400).
		Build()
	require.NoError(t, err)
	vars, err := formulation.Declare(p, mip.NewProgram())
	require.NoError(t, err)
	return p, vars
}

func solved() mapSource {
	return mapSource{
		"s[S1,2030]":       1,
		"o[S1,2030]":       0.9999999,
		"s[S1,2031]":       1,
		"u[S1,dc,2030]":    2.0000001,
		"ubar[S1,dc,2030]": 2,
		"ubar[S1,dc,2031]": 1.9999999,
		"u[S1,bi,2031]":    1,
		"ubar[S1,bi,2031]": 1,
		"v[S1,2031]":       12,
		"z[R1,2031]":       0.75,
		"a[S1,R1,2031]":    0.75,
		"a[S1,R1,2030]":    1e-12,
	}
}

func TestExtract(t *testing.T) {
	p, vars := instance(t)
	plan, err := Extract(p, vars, solved())
	require.NoError(t, err)

	require.Len(t, plan.Stations, 4)
	st, ok := plan.Station("S1", 2030)
	require.True(t, ok)
	assert.True(t, st.Active)
	assert.True(t, st.Opened)
	st, _ = plan.Station("S2", 2031)
	assert.False(t, st.Active)

	require.Len(t, plan.Fleet, 8)
	assert.Equal(t, 2, plan.Units("S1", "dc", 2031))
	assert.Equal(t, 0, plan.Units("S2", "dc", 2031))

	assert.InDelta(t, 0.75, plan.Served("R1", 2031), 1e-12)
	require.Len(t, plan.Coverage, 2)
	assert.InDelta(t, 300, plan.Coverage[1].ServedEnergy, 1e-9)

	require.Len(t, plan.Assignments, 1, "near-zero shares are dropped")
	assert.Equal(t, model.Period(2031), plan.Assignments[0].Period)
}

func TestLedger(t *testing.T) {
	p, vars := instance(t)
	plan, err := Extract(p, vars, solved())
	require.NoError(t, err)
	require.Len(t, plan.Ledger, 2)

	l := plan.Ledger[0]
	assert.Equal(t, model.Period(2030), l.Period)
	assert.True(t, l.Capital.Equal(decimal.RequireFromString("1600.70")), l.Capital.String())
	assert.True(t, l.Operating.IsZero())
	assert.True(t, l.Remaining.Equal(decimal.RequireFromString("399.30")), l.Remaining.String())
	assert.False(t, l.Overspent(decimal.Zero))

	l = plan.Ledger[1]
	// 20.20 fixed + 2×0.1 per unit
	assert.True(t, l.Operating.Equal(decimal.RequireFromString("20.4")), l.Operating.String())
	assert.True(t, l.Incentive.Equal(decimal.NewFromInt(6)))
	assert.True(t, l.IncentiveRemaining.Equal(decimal.NewFromInt(4)))
	assert.True(t, l.Spend().Equal(decimal.RequireFromString("20.4")))
}

func TestLedgerOverspent(t *testing.T) {
	l := LedgerRecord{Remaining: decimal.RequireFromString("-0.01"), IncentiveRemaining: decimal.Zero}
	assert.True(t, l.Overspent(decimal.Zero))
	assert.False(t, l.Overspent(decimal.RequireFromString("0.05")))
}

func TestExtractPropagatesValueErrors(t *testing.T) {
	p, vars := instance(t)
	_, err := Extract(p, vars, failingSource{})
	var ee *ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "s[S1,2030]", ee.Var)
	assert.True(t, errors.Is(err, mip.ErrNoSolution))
}

func TestExtractFromSolvedProgram(t *testing.T) {
	p, _ := instance(t)
	prog := mip.NewProgram()
	vars, err := formulation.Build(context.Background(), p, prog, formulation.Options{})
	require.NoError(t, err)
	plan, err := Extract(p, vars, solved())
	require.NoError(t, err)

	point := map[mip.Var]float64{}
	for _, v := range prog.Variables() {
		point[v.Var] = solved()[v.Name()]
	}
	for _, l := range plan.Ledger {
		c, ok := prog.Constraint(fmt.Sprintf("budget[%d]", l.Period))
		require.True(t, ok)
		lhs, _ := l.Spend().Float64()
		assert.InDelta(t, c.Expr.Evaluate(func(v mip.Var) float64 { return point[v] }), lhs, 1e-3)
	}
}

func TestSummary(t *testing.T) {
	p, vars := instance(t)
	plan, err := Extract(p, vars, solved())
	require.NoError(t, err)
	s := Summarize(p, plan, 1234.5)

	assert.Equal(t, model.Period(2031), s.Period)
	assert.Equal(t, []model.SiteID{"S1"}, s.OpenSites)
	assert.Equal(t, 2, s.UnitsByType["dc"])
	assert.Equal(t, 1, s.UnitsByType["bi"])
	assert.Equal(t, 1, s.V2GUnits)
	assert.InDelta(t, 12, s.V2GEnergy, 1e-9)
	assert.InDelta(t, 0.75, s.CoverageShare["R1"], 1e-9)
	assert.Equal(t, "1621.10", s.TotalSpend.StringFixed(2))

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "Objective: 1234.50")
	assert.Contains(t, out, "Open sites in 2031 (1): S1")
	assert.Contains(t, out, "75.00%")
}
