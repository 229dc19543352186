package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/orrery/model"
)

// ErrInvalidTLE is returned when a two-line element set cannot be used.
var ErrInvalidTLE = errors.New("invalid two-line element set")

// Sample is the parent-relative result of one motion model evaluation.
type Sample struct {
	Offset      model.Vec3
	MeanAnomaly float64
	TrueAnomaly float64
}

// MotionModel computes a body's offset from its parent at a simulation time.
// Implementations hold no per-frame state: the result is a pure function of
// the time.
type MotionModel interface {
	Propagate(simTime float64) Sample
}

// StaticMotionModel keeps a body at its parent's position (the star sits at
// the origin).
type StaticMotionModel struct{}

// Propagate for static motion always returns a zero offset.
func (StaticMotionModel) Propagate(float64) Sample { return Sample{} }

// KeplerMotionModel follows a fixed two-body ellipse.
type KeplerMotionModel struct {
	Elements Elements
}

// Propagate solves Kepler's equation at simTime.
func (m KeplerMotionModel) Propagate(simTime float64) Sample {
	s := m.Elements.Solve(simTime)
	return Sample{
		Offset:      model.Vec3{X: s.X, Z: s.Z},
		MeanAnomaly: s.MeanAnomaly,
		TrueAnomaly: s.TrueAnomaly,
	}
}

// SGP4MotionModel uses a TLE and SGP4 to place an artificial satellite
// around its parent planet. Simulation time zero corresponds to epoch.
type SGP4MotionModel struct {
	sat   satellite.Satellite
	epoch time.Time
	scale float64

	onError func(error)
	failing atomic.Bool
}

// NewSGP4MotionModel constructs a satellite model from TLE lines. scale
// converts metres into output units. A zero epoch starts the simulation at
// the element set's own epoch.
func NewSGP4MotionModel(line1, line2 string, epoch time.Time, scale float64) (m *SGP4MotionModel, err error) {
	// go-satellite panics on malformed element sets.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%w: %v", ErrInvalidTLE, r)
		}
	}()
	if len(line1) < 69 || len(line2) < 69 {
		return nil, fmt.Errorf("%w: lines must be 69 characters", ErrInvalidTLE)
	}
	tleEpoch, err := parseTLEEpoch(line1)
	if err != nil {
		return nil, err
	}
	if epoch.IsZero() {
		epoch = tleEpoch
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	m = &SGP4MotionModel{sat: sat, epoch: epoch, scale: scale}
	if _, ok := m.eciAt(tleEpoch); !ok {
		return nil, fmt.Errorf("%w: propagation at element epoch failed", ErrInvalidTLE)
	}
	return m, nil
}

// parseTLEEpoch reads the YYDDD.DDDDDDDD epoch field of line 1.
func parseTLEEpoch(line1 string) (time.Time, error) {
	field := strings.TrimSpace(line1[18:32])
	if len(field) < 6 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrInvalidTLE, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year %q", ErrInvalidTLE, field[:2])
	}
	doy, err := strconv.ParseFloat(field[2:], 64)
	if err != nil || doy < 1 || doy >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, field[2:])
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((doy - 1) * 24 * float64(time.Hour))), nil
}

// Epoch is the instant simulation time zero maps to.
func (m *SGP4MotionModel) Epoch() time.Time { return m.epoch }

// OnError registers a callback for propagation failures. It fires once when
// propagation starts failing, not on every frame.
func (m *SGP4MotionModel) OnError(fn func(error)) { m.onError = fn }

// Propagate runs SGP4 at epoch+simTime. go-satellite works in kilometres in
// an Earth-centred inertial frame; the equatorial plane is mapped onto the
// display x/z plane.
func (m *SGP4MotionModel) Propagate(simTime float64) Sample {
	posECI, ok := m.eci(simTime)
	if !ok {
		if m.failing.CompareAndSwap(false, true) && m.onError != nil {
			m.onError(fmt.Errorf("sgp4 propagation diverged at t=%.0fs", simTime))
		}
		return Sample{}
	}
	m.failing.Store(false)

	const kmToM = 1000.0
	k := kmToM * m.scale
	return Sample{
		Offset: model.Vec3{
			X: posECI.X * k,
			Y: posECI.Z * k,
			Z: posECI.Y * k,
		},
	}
}

func (m *SGP4MotionModel) eci(simTime float64) (satellite.Vector3, bool) {
	// Whole seconds via Unix time: long sessions overflow time.Duration.
	return m.eciAt(time.Unix(m.epoch.Unix()+int64(math.Floor(simTime)), 0))
}

func (m *SGP4MotionModel) eciAt(at time.Time) (satellite.Vector3, bool) {
	at = at.UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	pos, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return pos, false
		}
	}
	return pos, true
}
