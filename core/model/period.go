package model

import (
	"fmt"
	"sort"
)

// Period is one discrete planning step, usually a calendar year.
type Period int

// Horizon is the ordered set of planning periods.
type Horizon struct {
	periods []Period
	index   map[Period]int
}

// NewHorizon validates that periods are non-empty and strictly increasing.
func NewHorizon(periods []Period) (Horizon, error) {
	if len(periods) == 0 {
		return Horizon{}, &ConfigError{Table: "periods", Reason: "horizon is empty"}
	}
	idx := make(map[Period]int, len(periods))
	for i, t := range periods {
		if i > 0 && t <= periods[i-1] {
			return Horizon{}, &ConfigError{Table: "periods", Key: periodKey(t), Reason: "periods must be strictly increasing"}
		}
		idx[t] = i
	}
	cp := make([]Period, len(periods))
	copy(cp, periods)
	return Horizon{periods: cp, index: idx}, nil
}

// HorizonFromYears builds a horizon from an unordered list of years, dropping
// duplicates.
func HorizonFromYears(years []int) (Horizon, error) {
	seen := make(map[int]bool, len(years))
	var ps []Period
	for _, y := range years {
		if seen[y] {
			continue
		}
		seen[y] = true
		ps = append(ps, Period(y))
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	return NewHorizon(ps)
}

// Periods returns a copy of the ordered periods.
func (h Horizon) Periods() []Period {
	cp := make([]Period, len(h.periods))
	copy(cp, h.periods)
	return cp
}

// Len returns the number of periods.
func (h Horizon) Len() int { return len(h.periods) }

// First returns the first period.
func (h Horizon) First() Period { return h.periods[0] }

// Last returns the final period.
func (h Horizon) Last() Period { return h.periods[len(h.periods)-1] }

// Contains reports whether t belongs to the horizon.
func (h Horizon) Contains(t Period) bool {
	_, ok := h.index[t]
	return ok
}

// Index returns the position of t in the horizon.
func (h Horizon) Index(t Period) (int, bool) {
	i, ok := h.index[t]
	return i, ok
}

// Prev returns the period preceding t. ok is false for the first period or an
// unknown period.
func (h Horizon) Prev(t Period) (Period, bool) {
	i, ok := h.index[t]
	if !ok || i == 0 {
		return 0, false
	}
	return h.periods[i-1], true
}

// Window returns the periods of the service-lifetime window ending at t for
// equipment living l periods: [max(first, t-l+1), t] counted in horizon steps.
// The start never falls before the first period.
func (h Horizon) Window(t Period, l int) ([]Period, error) {
	end, ok := h.index[t]
	if !ok {
		return nil, &ConfigError{Table: "periods", Key: periodKey(t), Reason: "unknown period"}
	}
	if l < 1 {
		return nil, &ConfigError{Table: "chargers", Key: periodKey(t), Reason: fmt.Sprintf("lifetime %d < 1", l)}
	}
	start := end - l + 1
	if start < 0 {
		start = 0
	}
	out := make([]Period, end-start+1)
	copy(out, h.periods[start:end+1])
	return out, nil
}

func periodKey(t Period) string { return fmt.Sprintf("%d", int(t)) }
