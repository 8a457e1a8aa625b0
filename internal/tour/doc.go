// Package tour holds the tour catalogue: the Tour, Scene, Hotspot and
// neighbourhood Marker types, their validation, and a cached Registry over
// SQLite persistence.
//
// Tours are loaded once into a session and never mutated by it; sessions get
// deep copies from the Registry.
//
// Navigation hotspots must name a target scene. A target that does not exist
// in the tour is a configuration error: the tour still loads, the Registry
// logs a warning, and activating the hotspot does nothing.
package tour
