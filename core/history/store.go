// Package history persists a record of every planning run so past plans can
// be listed and compared. Backends are a plain JSONL file, a rotating JSONL
// file, SQLite and PostgreSQL; they are selected by name through the factory
// registry.
package history

import (
	"context"
	"time"
)

// RunRecord captures one planning run and the headline figures of its plan.
type RunRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Instance    string    `json:"instance"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	Objective   float64   `json:"objective"`
	Bound       float64   `json:"bound"`
	Gap         float64   `json:"gap"`
	Nodes       int       `json:"nodes"`
	Variables   int       `json:"variables"`
	Constraints int       `json:"constraints"`
	BuildMS     float64   `json:"build_ms"`
	SolveMS     float64   `json:"solve_ms"`
	// OpenSites is the number of active sites in the last period.
	OpenSites int `json:"open_sites"`
	// TotalSpend is the decimal sum of the ledger over the horizon.
	TotalSpend string             `json:"total_spend,omitempty"`
	Coverage   map[string]float64 `json:"coverage,omitempty"`
	IIS        []string           `json:"iis,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// RunQuery defines filters for retrieving records. Zero fields match all.
type RunQuery struct {
	Start    time.Time
	End      time.Time
	Instance string
	Status   string
	// Limit keeps the most recent records only.
	Limit int
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// Match reports whether r passes the filters of q.
func (q RunQuery) Match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Instance != "" && r.Instance != q.Instance {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return true
}

// tail applies the limit of q to records ordered oldest first.
func (q RunQuery) tail(recs []RunRecord) []RunRecord {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error { return nil }

func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) { return nil, nil }

func (NopStore) Close() error { return nil }
