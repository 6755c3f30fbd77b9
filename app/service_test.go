package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/v2gplan/config"
	"github.com/kilianp07/v2gplan/core/factory"
	"github.com/kilianp07/v2gplan/core/history"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/model"
	"github.com/kilianp07/v2gplan/pkg/export"
)

func smallProblem(t *testing.T) *model.Problem {
	t.Helper()
	p, err := model.NewBuilder("small").
		SetPeriods(2030, 2031).
		AddSite(model.Site{ID: "S1"}).
		AddCharger(model.ChargerType{ID: "dc50", PowerKW: 50, Lifetime: 2, Capacity: 1000}).
		AddRoute(model.Route{ID: "A7"}).
		SetEligible("S1", "A7").
		SetDefault(model.TableG, 100).
		SetDefault(model.TableDemand, 500).
		SetDefault(model.TableBudget, 1e6).
		Set(model.TablePriority, model.Key{Route: "A7"}, 1).
		Set(model.TableCFix, model.SitePeriod("S1", 2030), 250).
		Build()
	require.NoError(t, err)
	return p
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		History: factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "runs.jsonl")}},
		Export:  config.ExportConfig{Dir: filepath.Join(dir, "out"), Format: "both"},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServiceSolveProblem(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, svc.Close()) }()

	out, err := svc.SolveProblem(context.Background(), smallProblem(t))
	require.NoError(t, err)
	assert.Equal(t, mip.StatusOptimal, out.Result.Status)
	assert.InDelta(t, 1000, out.Result.Objective, 1e-6)

	for _, name := range []string{export.StationsFile, export.LedgerFile, export.PlanFile} {
		_, err := os.Stat(filepath.Join(cfg.Export.Dir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, out.Files, 7)

	recs, err := svc.History.Query(context.Background(), history.RunQuery{Instance: "small"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "250.00", recs[0].TotalSpend)
}

func TestServiceSolveMissingInstance(t *testing.T) {
	svc, err := New(testConfig(t))
	require.NoError(t, err)
	defer svc.Close()
	_, err = svc.Solve(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.History = factory.ModuleConfig{Type: "cassandra"}
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err = New(cfg)
	assert.Error(t, err)
}
