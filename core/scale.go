package core

import (
	"math"

	"github.com/signalsfoundry/orrery/model"
)

// Scale converts SI catalogue values into display units. It is applied to a
// body's record before its elements are built; the propagator itself only
// ever sees already-scaled distances.
type Scale struct {
	Distance float64 // display units per metre of orbital distance
	Size     float64 // display units per metre of body radius
	SunSize  float64 // display units per metre of the star's radius

	// MoonDistanceBoost multiplies the orbits of moons and satellites so they
	// are visible next to their parent at solar-system distance scale.
	MoonDistanceBoost float64

	MinPlanetRadius float64
	MinMoonRadius   float64
}

// DefaultScale is one display unit per billion metres of orbit.
func DefaultScale() Scale {
	return Scale{
		Distance:          1 / 1e9,
		Size:              1 / 1e7,
		SunSize:           1 / 1e8,
		MoonDistanceBoost: 10,
		MinPlanetRadius:   2,
		MinMoonRadius:     1,
	}
}

// IdentityScale leaves every value in SI units.
func IdentityScale() Scale {
	return Scale{Distance: 1, Size: 1, SunSize: 1, MoonDistanceBoost: 1}
}

// OrbitAxis returns the display semi-major axis for a body of the given kind.
func (s Scale) OrbitAxis(kind model.BodyKind, semiMajorAxis float64) float64 {
	a := semiMajorAxis * s.Distance
	if kind == model.KindMoon || kind == model.KindSatellite {
		a *= s.boost()
	}
	return a
}

// SatelliteDistance is the factor applied to SGP4 offsets, which come back
// in metres relative to the parent.
func (s Scale) SatelliteDistance() float64 {
	return s.Distance * s.boost()
}

// VisualRadius returns the display radius, clamped to a visible minimum.
func (s Scale) VisualRadius(kind model.BodyKind, radius float64) float64 {
	switch kind {
	case model.KindStar:
		return radius * s.SunSize
	case model.KindMoon, model.KindSatellite:
		return math.Max(radius*s.Size, s.MinMoonRadius)
	default:
		return math.Max(radius*s.Size, s.MinPlanetRadius)
	}
}

func (s Scale) boost() float64 {
	if s.MoonDistanceBoost <= 0 {
		return 1
	}
	return s.MoonDistanceBoost
}
