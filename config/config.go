package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/v2gplan/core/factory"
	"github.com/kilianp07/v2gplan/core/metrics"
	"github.com/kilianp07/v2gplan/infra/monitoring"
	"github.com/kilianp07/v2gplan/infra/mqtt"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: V2GPLAN_PLANNER__TIME_LIMIT_SECONDS=30.
const EnvPrefix = "V2GPLAN_"

type Config struct {
	Planner PlannerConfig  `json:"planner"`
	Logging LoggingConfig  `json:"logging"`
	Metrics metrics.Config `json:"metrics"`
	// History selects the run store backend: nop, jsonl, rotating, sqlite
	// or postgres.
	History    factory.ModuleConfig `json:"history"`
	Export     ExportConfig         `json:"export"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Monitoring monitoring.Config    `json:"monitoring"`
}

// Load reads path, applies environment overrides, fills defaults and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Planner.SetDefaults()
	c.Logging.SetDefaults()
	c.Export.SetDefaults()
	if c.History.Type == "" {
		c.History.Type = "nop"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if c.Export.Publish && c.MQTT.Broker == "" {
		return fmt.Errorf("export: publish requires mqtt.broker")
	}
	return nil
}
