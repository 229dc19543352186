package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/orrery/model"
)

// DefaultOrbitSegments is the resolution renderers use for orbit lines.
const DefaultOrbitSegments = 128

// SampleOrbitPath returns segments+1 points on the orbit ellipse in the
// parent-centred frame, starting and ending at perihelion.
func SampleOrbitPath(el Elements, segments int) ([]model.Vec3, error) {
	if segments < 3 {
		return nil, fmt.Errorf("orbit path needs at least 3 segments, got %d", segments)
	}
	a, e := el.SemiMajorAxis(), el.Eccentricity()
	p := a * (1 - e*e)

	points := make([]model.Vec3, 0, segments+1)
	for i := 0; i <= segments; i++ {
		theta := float64(i) / float64(segments) * 2 * math.Pi
		r := p / (1 + e*math.Cos(theta))
		points = append(points, model.Vec3{X: r * math.Cos(theta), Z: r * math.Sin(theta)})
	}
	return points, nil
}
