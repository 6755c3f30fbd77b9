package config

import (
	"github.com/kilianp07/v2gplan/pkg/export"
)

// ExportConfig controls where solved plans are written.
type ExportConfig struct {
	// Dir receives the plan tables. Empty disables file export.
	Dir string `json:"dir"`
	// Format is csv, json or both.
	Format string `json:"format"`
	// Publish announces every run on the MQTT broker.
	Publish bool `json:"publish"`
}

// SetDefaults applies sane defaults.
func (c *ExportConfig) SetDefaults() {
	if c.Format == "" {
		c.Format = string(export.FormatCSV)
	}
}

// Validate checks the export format.
func (c ExportConfig) Validate() error {
	_, err := export.ParseFormat(c.Format)
	return err
}
