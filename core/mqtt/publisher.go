// Package mqtt defines how solved plans are announced to downstream systems
// over a message broker.
package mqtt

import (
	"context"

	"github.com/kilianp07/v2gplan/core/solution"
)

// PlanMessage is the payload set published after a planning run.
type PlanMessage struct {
	RunID     string                  `json:"run_id"`
	Instance  string                  `json:"instance"`
	Mode      string                  `json:"mode"`
	Status    string                  `json:"status"`
	Objective float64                 `json:"objective"`
	Summary   *solution.Summary       `json:"summary,omitempty"`
	Ledger    []solution.LedgerRecord `json:"ledger,omitempty"`
	IIS       []string                `json:"iis,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// PlanPublisher announces planning results.
type PlanPublisher interface {
	PublishPlan(ctx context.Context, msg PlanMessage) error
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) PublishPlan(context.Context, PlanMessage) error { return nil }
