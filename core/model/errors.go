package model

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid or inconsistent problem data. It is fatal: no
// partial model is built when one is returned.
type ConfigError struct {
	// Table names the input table or entity set involved.
	Table string
	// Family names the constraint family that hit the error, if any.
	Family string
	// Key is the offending index tuple.
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Family != "" {
		fmt.Fprintf(&b, " in family %s", e.Family)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, " table %s", e.Table)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key (%s)", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// TableError is returned by data loaders. Missing distinguishes an absent
// required table from a malformed row.
type TableError struct {
	Table   string
	Row     int
	Missing bool
	Err     error
}

func (e *TableError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required table %s", e.Table)
	}
	if e.Row > 0 {
		return fmt.Sprintf("table %s row %d: %v", e.Table, e.Row, e.Err)
	}
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }
