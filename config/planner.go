package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/v2gplan/core/formulation"
	"github.com/kilianp07/v2gplan/core/mip"
	"github.com/kilianp07/v2gplan/core/planner"
)

// PlannerConfig selects the objective and bounds the solver.
type PlannerConfig struct {
	// Mode is "benefit" or "net-cost".
	Mode string `json:"mode"`
	// Alpha monetises priority-weighted served demand in net-cost mode.
	Alpha            float64 `json:"alpha"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	MIPGap           float64 `json:"mip_gap"`
	NodeLimit        int     `json:"node_limit"`
	// Parallel generates constraint families concurrently.
	Parallel   bool    `json:"parallel"`
	IISMaxRows int     `json:"iis_max_rows"`
	Tolerance  float64 `json:"tolerance"`
}

// DefaultMIPGap is the relative gap used when none is configured.
const DefaultMIPGap = 1e-4

// SetDefaults applies sane defaults.
func (c *PlannerConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = string(formulation.ModeBenefit)
	}
	if c.MIPGap == 0 {
		c.MIPGap = DefaultMIPGap
	}
}

// Validate checks value ranges and the objective mode.
func (c PlannerConfig) Validate() error {
	if _, err := formulation.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.Alpha < 0 {
		return fmt.Errorf("alpha must be >= 0, got %g", c.Alpha)
	}
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("time_limit_seconds must be >= 0")
	}
	if c.MIPGap < 0 || c.MIPGap >= 1 {
		return fmt.Errorf("mip_gap must be in [0,1), got %g", c.MIPGap)
	}
	if c.NodeLimit < 0 || c.IISMaxRows < 0 || c.Tolerance < 0 {
		return fmt.Errorf("node_limit, iis_max_rows and tolerance must be >= 0")
	}
	return nil
}

// Options converts the section into planner run options.
func (c PlannerConfig) Options() (planner.Options, error) {
	mode, err := formulation.ParseMode(c.Mode)
	if err != nil {
		return planner.Options{}, err
	}
	return planner.Options{
		Mode:    mode,
		Weights: formulation.Weights{Alpha: c.Alpha},
		Limits: mip.Limits{
			TimeLimit: time.Duration(c.TimeLimitSeconds * float64(time.Second)),
			MIPGap:    c.MIPGap,
			NodeLimit: c.NodeLimit,
		},
		Parallel: c.Parallel,
	}, nil
}
