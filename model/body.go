package model

import "gonum.org/v1/gonum/spatial/r3"

// BodyKind classifies a body by what it orbits.
type BodyKind int

const (
	KindStar      BodyKind = iota // fixed at the origin
	KindPlanet                    // orbits the origin
	KindMoon                      // orbits a planet
	KindSatellite                 // TLE-tracked, orbits a planet
)

var kindNames = map[BodyKind]string{
	KindStar:      "star",
	KindPlanet:    "planet",
	KindMoon:      "moon",
	KindSatellite: "satellite",
}

func (k BodyKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseBodyKind maps a lower-case kind name back to a BodyKind.
func ParseBodyKind(s string) (BodyKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Vec3 is a world-space position. The orbital plane is x/z; y is "up".
type Vec3 = r3.Vec

// NoParent marks bodies whose parent is the origin.
const NoParent = -1

// Orbit holds the fixed orbital record of a body in SI units, exactly as it
// came from the catalogue. Display scaling is never written back here.
type Orbit struct {
	SemiMajorAxis    float64 // metres
	Eccentricity     float64
	Period           float64 // seconds
	MeanAnomalyEpoch float64 // radians at simulation time zero
}

// Body is the immutable description of a celestial body. It is created once
// at setup and never mutated afterwards.
type Body struct {
	Name   string
	Kind   BodyKind
	Radius float64 // metres
	Mass   float64 // kilograms, 0 when unknown
	Color  uint32

	Orbit Orbit

	// Parent is the index of the parent body in the registry order, or
	// NoParent for bodies that orbit the origin.
	Parent     int
	ParentName string

	// TLE lines for KindSatellite.
	TLE1, TLE2 string
}

// HasParent reports whether the body orbits another catalogued body.
func (b *Body) HasParent() bool { return b.Parent != NoParent }

// BodyState is the per-frame derived state of a body. It is recomputed every
// tick and kept apart from the immutable Body.
type BodyState struct {
	Name        string
	Position    Vec3 // world space
	Relative    Vec3 // offset from the parent
	MeanAnomaly float64
	TrueAnomaly float64
	Distance    float64 // |Relative|
}
