package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/v2gplan/core/formulation"
)

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `planner:
  mode: "net-cost"
  alpha: 0.25
  time_limit_seconds: 30
  node_limit: 5000
  parallel: true
logging:
  level: "debug"
  format: "console"
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
history:
  type: "sqlite"
  conf:
    path: "runs.db"
export:
  dir: "out"
  format: "both"
  publish: true
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "planner"
  topic_prefix: "corridor"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"planner.mode", cfg.Planner.Mode, "net-cost"},
		{"planner.alpha", cfg.Planner.Alpha, 0.25},
		{"planner.time_limit_seconds", cfg.Planner.TimeLimitSeconds, 30.0},
		{"planner.node_limit", cfg.Planner.NodeLimit, 5000},
		{"planner.parallel", cfg.Planner.Parallel, true},
		{"planner.mip_gap default", cfg.Planner.MIPGap, DefaultMIPGap},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"logging.format", cfg.Logging.Format, "console"},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"history.type", cfg.History.Type, "sqlite"},
		{"history.conf.path", cfg.History.Conf["path"], "runs.db"},
		{"export.dir", cfg.Export.Dir, "out"},
		{"export.format", cfg.Export.Format, "both"},
		{"export.publish", cfg.Export.Publish, true},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.client_id", cfg.MQTT.ClientID, "planner"},
		{"mqtt.topic_prefix", cfg.MQTT.TopicPrefix, "corridor"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}

	opts, err := cfg.Planner.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Mode != formulation.ModeNetCost || opts.Limits.TimeLimit != 30*time.Second || !opts.Parallel {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Weights.Alpha != 0.25 || opts.Limits.NodeLimit != 5000 {
		t.Errorf("unexpected weights or limits: %+v", opts)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planner.Mode != "benefit" || cfg.Logging.Level != "info" || cfg.History.Type != "nop" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Export.Format != "csv" {
		t.Errorf("export format default: %s", cfg.Export.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"planner":{"mode":"benefit","time_limit_seconds":10}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("V2GPLAN_PLANNER__TIME_LIMIT_SECONDS", "45")
	t.Setenv("V2GPLAN_PLANNER__MODE", "net_cost")
	t.Setenv("V2GPLAN_LOGGING__LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planner.TimeLimitSeconds != 45 {
		t.Errorf("time limit override: %v", cfg.Planner.TimeLimitSeconds)
	}
	if cfg.Planner.Mode != "net_cost" || cfg.Logging.Level != "warn" {
		t.Errorf("string overrides: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown ext":     "config.toml",
		"bad mode":        "mode.yaml",
		"negative alpha":  "alpha.yaml",
		"publish no mqtt": "publish.yaml",
		"bad format":      "format.yaml",
	}
	bodies := map[string]string{
		"config.toml":  "",
		"mode.yaml":    "planner:\n  mode: max-profit\n",
		"alpha.yaml":   "planner:\n  alpha: -1\n",
		"publish.yaml": "export:\n  publish: true\n",
		"format.yaml":  "export:\n  format: xml\n",
	}
	dir := t.TempDir()
	for name, file := range cases {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte(bodies[file]), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPlannerValidate(t *testing.T) {
	c := PlannerConfig{}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	c.MIPGap = 1
	if err := c.Validate(); err == nil {
		t.Error("mip_gap 1 accepted")
	}
	c.MIPGap = 0.01
	c.NodeLimit = -1
	if err := c.Validate(); err == nil {
		t.Error("negative node limit accepted")
	}
}
