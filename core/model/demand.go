package model

import "math"

const (
	daysPerYear  = 365
	hoursPerDay  = 24
	defaultKWhEV = 40
)

// TrafficProfile describes the EV traffic on a route used to derive demand.
type TrafficProfile struct {
	// AADT is the average annual daily traffic (vehicles/day).
	AADT float64 `json:"aadt" yaml:"aadt"`
	// Capture is the share of EVs on the route that stop to charge.
	Capture float64 `json:"capture" yaml:"capture"`
}

// AnnualDemand returns the yearly charging energy (kWh) drawn by a route:
// AADT · 365 · penetration · capture · kWh per charge. A non-positive
// kwhPerCharge falls back to 40 kWh.
func AnnualDemand(tp TrafficProfile, penetration, kwhPerCharge float64) float64 {
	if kwhPerCharge <= 0 {
		kwhPerCharge = defaultKWhEV
	}
	return tp.AADT * daysPerYear * penetration * tp.Capture * kwhPerCharge
}

// AnnualCapacity returns the yearly energy one unit can serve at the given
// average utilisation.
func AnnualCapacity(powerKW, utilisation float64) float64 {
	return powerKW * hoursPerDay * utilisation * daysPerYear
}

// EffectiveV2G scales a unit's base V2G potential by the policy intensity
// theta with sensitivity beta, capped at the technical maximum.
func EffectiveV2G(base, max, beta, theta float64) float64 {
	v := base * (1 + beta*theta)
	if max > 0 {
		v = math.Min(v, max)
	}
	return v
}
