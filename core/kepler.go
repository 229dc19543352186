package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/orrery/model"
)

// KeplerIterations is the fixed number of fixed-point steps used to solve
// Kepler's equation. There is no convergence check: the result is a bounded
// approximation that is exact enough for eccentricities well below 0.5 and
// deterministic for frame-by-frame recomputation.
const KeplerIterations = 10

// ErrInvalidElements is returned when orbital elements fall outside the
// elliptical domain the propagator supports.
var ErrInvalidElements = errors.New("invalid orbital elements")

// Elements are the fixed two-body orbital elements of one body. The
// semi-major axis is in whatever unit the caller wants positions in; the
// propagator does not know about display scaling.
type Elements struct {
	semiMajorAxis    float64
	eccentricity     float64
	period           float64
	meanAnomalyEpoch float64
}

// NewElements validates and constructs orbital elements.
func NewElements(semiMajorAxis, eccentricity, period, meanAnomalyEpoch float64) (Elements, error) {
	switch {
	case !finite(semiMajorAxis) || semiMajorAxis <= 0:
		return Elements{}, fmt.Errorf("%w: semi-major axis %v must be positive", ErrInvalidElements, semiMajorAxis)
	case !finite(eccentricity) || eccentricity < 0 || eccentricity >= 1:
		return Elements{}, fmt.Errorf("%w: eccentricity %v outside [0, 1)", ErrInvalidElements, eccentricity)
	case !finite(period) || period <= 0:
		return Elements{}, fmt.Errorf("%w: period %v must be positive", ErrInvalidElements, period)
	case !finite(meanAnomalyEpoch):
		return Elements{}, fmt.Errorf("%w: mean anomaly %v is not finite", ErrInvalidElements, meanAnomalyEpoch)
	}
	return Elements{
		semiMajorAxis:    semiMajorAxis,
		eccentricity:     eccentricity,
		period:           period,
		meanAnomalyEpoch: meanAnomalyEpoch,
	}, nil
}

// ElementsFromOrbit builds elements from a catalogue orbit, with the
// semi-major axis already scaled by the caller.
func ElementsFromOrbit(o model.Orbit, scaledAxis float64) (Elements, error) {
	return NewElements(scaledAxis, o.Eccentricity, o.Period, o.MeanAnomalyEpoch)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (el Elements) SemiMajorAxis() float64    { return el.semiMajorAxis }
func (el Elements) Eccentricity() float64     { return el.eccentricity }
func (el Elements) Period() float64           { return el.period }
func (el Elements) MeanAnomalyEpoch() float64 { return el.meanAnomalyEpoch }

// MeanMotion returns the mean angular rate in radians per second.
func (el Elements) MeanMotion() float64 {
	return 2 * math.Pi / el.period
}

// MeanAnomaly returns the mean anomaly at simulation time t. The value is
// intentionally not wrapped into [0, 2π).
func (el Elements) MeanAnomaly(t float64) float64 {
	return el.meanAnomalyEpoch + el.MeanMotion()*t
}

// SolveKepler solves E = M + e·sin(E) by fixed-point iteration seeded at M.
func SolveKepler(meanAnomaly, eccentricity float64) float64 {
	e := meanAnomaly
	for i := 0; i < KeplerIterations; i++ {
		e = meanAnomaly + eccentricity*math.Sin(e)
	}
	return e
}

// EccentricAnomaly returns E at simulation time t.
func (el Elements) EccentricAnomaly(t float64) float64 {
	return SolveKepler(el.MeanAnomaly(t), el.eccentricity)
}

// TrueAnomaly converts an eccentric anomaly to the true anomaly using the
// half-angle form.
func (el Elements) TrueAnomaly(eccentricAnomaly float64) float64 {
	e := el.eccentricity
	return 2 * math.Atan2(
		math.Sqrt(1+e)*math.Sin(eccentricAnomaly/2),
		math.Sqrt(1-e)*math.Cos(eccentricAnomaly/2),
	)
}

// Radius returns the focal distance for an eccentric anomaly.
func (el Elements) Radius(eccentricAnomaly float64) float64 {
	return el.semiMajorAxis * (1 - el.eccentricity*math.Cos(eccentricAnomaly))
}

// Perihelion is the closest distance to the focus.
func (el Elements) Perihelion() float64 { return el.semiMajorAxis * (1 - el.eccentricity) }

// Aphelion is the farthest distance from the focus.
func (el Elements) Aphelion() float64 { return el.semiMajorAxis * (1 + el.eccentricity) }

// Solution is the full result of propagating one body to one instant.
type Solution struct {
	MeanAnomaly      float64
	EccentricAnomaly float64
	TrueAnomaly      float64
	Radius           float64
	X, Z             float64 // parent-centred offset in the orbital plane
}

// Solve propagates the elements to simulation time t.
func (el Elements) Solve(t float64) Solution {
	m := el.MeanAnomaly(t)
	ecc := SolveKepler(m, el.eccentricity)
	nu := el.TrueAnomaly(ecc)
	r := el.Radius(ecc)
	return Solution{
		MeanAnomaly:      m,
		EccentricAnomaly: ecc,
		TrueAnomaly:      nu,
		Radius:           r,
		X:                r * math.Cos(nu),
		Z:                r * math.Sin(nu),
	}
}

// Offset returns the planar position relative to the parent at time t.
func (el Elements) Offset(t float64) (x, z float64) {
	s := el.Solve(t)
	return s.X, s.Z
}

// Position returns the world position at time t given the parent's current
// world position. Orbits are coplanar, so y is the parent's y.
func Position(el Elements, t float64, parent model.Vec3) model.Vec3 {
	x, z := el.Offset(t)
	return r3.Add(parent, r3.Vec{X: x, Y: 0, Z: z})
}
