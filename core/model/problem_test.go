package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseBuilder() *Builder {
	return NewBuilder("test").
		SetPeriods(2025, 2026, 2027).
		AddSite(Site{ID: "a"}).
		AddSite(Site{ID: "b"}).
		AddCharger(ChargerType{ID: "dc50", PowerKW: 50, Lifetime: 2, Capacity: 1000}).
		AddCharger(ChargerType{ID: "v2g", PowerKW: 150, Lifetime: 3, Capacity: 3000, V2G: true}).
		AddRoute(Route{ID: "r1", Windows: []Window{{ID: "w1", Sites: []SiteID{"a", "b"}}}}).
		SetEligible("a", "r1").
		SetEligible("b", "r1")
}

func TestBuildDefaults(t *testing.T) {
	p, err := baseBuilder().
		Set(TableG, SitePeriod("a", 2025), 100).
		Set(TablePhiEff, UnitKey("a", "dc50", 2025), 99).
		Set(TablePhiEff, UnitKey("a", "v2g", 2025), 10).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 100.0, p.G("a", 2025))
	assert.Equal(t, 0.0, p.G("a", 2026))
	assert.Equal(t, Unbounded, p.Umax("a"))
	assert.Equal(t, Unbounded, p.InstMax("b", 2027))
	assert.Equal(t, 0.0, p.CFix("b", 2027))
	assert.Equal(t, 0.0, p.Budget(2026))
	assert.Equal(t, 0.0, p.Priority("r1"))
	assert.Equal(t, 0.0, p.PhiEff("a", "dc50", 2025), "non-V2G throughput must be forced to zero")
	assert.Equal(t, 10.0, p.PhiEff("a", "v2g", 2025))
	assert.False(t, p.Eligible("a", "r2"))
}

func TestDefaultFor(t *testing.T) {
	cases := map[TableName]float64{
		TableUmax:     Unbounded,
		TableInstMax:  Unbounded,
		TableG:        0,
		TableCVar:     0,
		TableDemand:   0,
		TableBudget:   0,
		TableEligible: 0,
	}
	for name, want := range cases {
		got, err := DefaultFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := DefaultFor("nope")
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestSetDefaultOverride(t *testing.T) {
	p, err := baseBuilder().SetDefault(TableG, 1500).Set(TableG, SitePeriod("b", 2026), 10).Build()
	require.NoError(t, err)
	assert.Equal(t, 1500.0, p.G("a", 2025))
	assert.Equal(t, 10.0, p.G("b", 2026))
	tbl, ok := p.Table(TableG)
	require.True(t, ok)
	assert.Equal(t, 1500.0, tbl.Default())
	assert.Equal(t, 1, tbl.Len())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"lifetime", baseBuilder().AddCharger(ChargerType{ID: "bad", Lifetime: 0})},
		{"unknown site key", baseBuilder().Set(TableG, SitePeriod("zz", 2025), 1)},
		{"period outside horizon", baseBuilder().Set(TableBudget, PeriodKey(2030), 1)},
		{"wrong shape", baseBuilder().Set(TableMVar, UnitKey("a", "dc50", 2025), 1)},
		{"eligibility not binary", baseBuilder().Set(TableEligible, SiteRoute("a", "r1"), 0.5)},
		{"window with unknown site", baseBuilder().AddRoute(Route{ID: "r2", Windows: []Window{{ID: "w", Sites: []SiteID{"zz"}}}}).SetEligible("a", "r2")},
		{"window with ineligible site", baseBuilder().AddRoute(Route{ID: "r2", Windows: []Window{{ID: "w", Sites: []SiteID{"b"}}}}).SetEligible("a", "r2")},
		{"empty window", baseBuilder().AddRoute(Route{ID: "r2", Windows: []Window{{ID: "w"}}}).SetEligible("a", "r2")},
		{"route without eligible site", baseBuilder().AddRoute(Route{ID: "r2"})},
		{"duplicate site", baseBuilder().AddSite(Site{ID: "a"})},
		{"unknown table", baseBuilder().Set("X", PeriodKey(2025), 1)},
		{"non increasing periods", baseBuilder().SetPeriods(2026, 2025)},
		{"negative priority", baseBuilder().Set(TablePriority, Key{Route: "r1"}, -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			require.Error(t, err)
			var cerr *ConfigError
			assert.True(t, errors.As(err, &cerr), "expected ConfigError, got %T", err)
		})
	}
}

func TestProblemAccessorsReturnCopies(t *testing.T) {
	p, err := baseBuilder().Build()
	require.NoError(t, err)
	routes := p.Routes()
	routes[0].Windows[0].Sites[0] = "mutated"
	r, ok := p.Route("r1")
	require.True(t, ok)
	assert.Equal(t, SiteID("a"), r.Windows[0].Sites[0])
	assert.Equal(t, []SiteID{"a", "b"}, p.EligibleSites("r1"))
	assert.Len(t, p.V2GChargers(), 1)
}

func TestHorizonWindowClamps(t *testing.T) {
	h, err := NewHorizon([]Period{2025, 2026, 2027, 2028})
	require.NoError(t, err)

	w, err := h.Window(2026, 5)
	require.NoError(t, err)
	assert.Equal(t, []Period{2025, 2026}, w)

	w, err = h.Window(2028, 2)
	require.NoError(t, err)
	assert.Equal(t, []Period{2027, 2028}, w)

	w, err = h.Window(2025, 1)
	require.NoError(t, err)
	assert.Equal(t, []Period{2025}, w)

	_, err = h.Window(2030, 1)
	assert.Error(t, err)
	_, err = h.Window(2025, 0)
	assert.Error(t, err)

	prev, ok := h.Prev(2027)
	assert.True(t, ok)
	assert.Equal(t, Period(2026), prev)
	_, ok = h.Prev(2025)
	assert.False(t, ok)
}

func TestHorizonZeroBased(t *testing.T) {
	h, err := NewHorizon([]Period{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, Period(0), h.First())
	assert.Equal(t, Period(2), h.Last())
	w, err := h.Window(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []Period{0, 1}, w)
}

func TestHorizonFromYears(t *testing.T) {
	h, err := HorizonFromYears([]int{2027, 2025, 2026, 2025})
	require.NoError(t, err)
	assert.Equal(t, []Period{2025, 2026, 2027}, h.Periods())
	_, err = HorizonFromYears(nil)
	assert.Error(t, err)
}

func TestDemandHelpers(t *testing.T) {
	d := AnnualDemand(TrafficProfile{AADT: 2500, Capture: 0.4}, 0.005, 40)
	assert.InDelta(t, 2500*365*0.005*0.4*40, d, 1e-9)
	assert.InDelta(t, 38544, AnnualCapacity(22, 0.20), 1e-9)
	assert.InDelta(t, 3750, EffectiveV2G(3125, 18250, 0.2, 1), 1e-9)
	assert.InDelta(t, 100, EffectiveV2G(3125, 100, 0.2, 1), 1e-9)
}

func TestKeyFormatShowsPeriodZero(t *testing.T) {
	assert.Equal(t, "site=S1,period=0", SitePeriod("S1", 0).Format(ShapeSite|ShapePeriod))
	assert.Equal(t, "site=S1,charger=dc50,period=0", UnitKey("S1", "dc50", 0).Format(ShapeSite|ShapeCharger|ShapePeriod))
	assert.Equal(t, "route=r1,period=0", keyOf(TableDemand, RoutePeriod("r1", 0)))
	assert.Equal(t, "site=a,route=r1", keyOf(TableEligible, SiteRoute("a", "r1")))
	assert.Equal(t, "default", keyOf(TableG, Key{}))
	assert.Equal(t, "site=S1", SitePeriod("S1", 0).String())
	assert.Equal(t, "period=0", PeriodKey(0).String())
}

func TestConfigErrorNamesPeriodZero(t *testing.T) {
	_, err := NewBuilder("zero").
		SetPeriods(0, 1).
		AddSite(Site{ID: "a"}).
		AddCharger(ChargerType{ID: "dc50", PowerKW: 50, Lifetime: 2}).
		Set(TableG, SitePeriod("a", 0), -5).
		Build()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "site=a,period=0", cerr.Key)
}
