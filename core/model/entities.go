package model

// SiteID identifies a candidate charging site.
type SiteID string

// ChargerID identifies a charger type.
type ChargerID string

// RouteID identifies a highway corridor.
type RouteID string

// WindowID identifies a coverage window within a route.
type WindowID string

// Site is a candidate location for a charging station.
type Site struct {
	ID   SiteID `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ChargerType describes a class of charging equipment.
type ChargerType struct {
	ID      ChargerID `json:"id" yaml:"id"`
	PowerKW float64   `json:"power_kw" yaml:"power_kw"`
	// Lifetime is the service life in periods. Must be at least 1.
	Lifetime int `json:"lifetime" yaml:"lifetime"`
	// Capacity is the yearly energy a single unit can serve (kWh).
	Capacity float64 `json:"capacity" yaml:"capacity"`
	V2G      bool    `json:"v2g" yaml:"v2g"`
}

// Window is a set of alternative sites on a route; activating any one of them
// closes the corresponding coverage gap.
type Window struct {
	ID    WindowID `json:"id" yaml:"id"`
	Sites []SiteID `json:"sites" yaml:"sites"`
}

// Route is a highway corridor with its coverage windows.
type Route struct {
	ID      RouteID  `json:"id" yaml:"id"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Windows []Window `json:"windows,omitempty" yaml:"windows,omitempty"`
}

func copyWindows(ws []Window) []Window {
	out := make([]Window, len(ws))
	for i, w := range ws {
		sites := make([]SiteID, len(w.Sites))
		copy(sites, w.Sites)
		out[i] = Window{ID: w.ID, Sites: sites}
	}
	return out
}
