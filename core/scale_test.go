package core

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/signalsfoundry/orrery/model"
)

func TestScaleOrbitAxis(t *testing.T) {
	s := DefaultScale()
	if got := s.OrbitAxis(model.KindPlanet, 1.496e11); !scalar.EqualWithinAbs(got, 149.6, 1e-9) {
		t.Fatalf("planet axis = %v, want 149.6", got)
	}
	if got := s.OrbitAxis(model.KindMoon, 3.844e8); !scalar.EqualWithinAbs(got, 3.844, 1e-12) {
		t.Fatalf("moon axis = %v, want 3.844", got)
	}
	if got := s.SatelliteDistance(); !scalar.EqualWithinAbs(got, 1e-8, 1e-20) {
		t.Fatalf("satellite factor = %v, want 1e-8", got)
	}

	s.MoonDistanceBoost = 0
	if got := s.OrbitAxis(model.KindSatellite, 1e9); !scalar.EqualWithinAbs(got, 1, 1e-12) {
		t.Fatalf("unboosted axis = %v, want 1", got)
	}
}

func TestScaleVisualRadius(t *testing.T) {
	s := DefaultScale()
	cases := []struct {
		kind   model.BodyKind
		radius float64
		want   float64
	}{
		{model.KindStar, 6.96e8, 6.96},
		{model.KindPlanet, 6.99e7, 6.99},
		{model.KindPlanet, 2.44e6, 2},
		{model.KindMoon, 1.737e6, 1},
		{model.KindSatellite, 50, 1},
	}
	for _, tc := range cases {
		if got := s.VisualRadius(tc.kind, tc.radius); !scalar.EqualWithinAbs(got, tc.want, 1e-9) {
			t.Fatalf("VisualRadius(%s, %v) = %v, want %v", tc.kind, tc.radius, got, tc.want)
		}
	}
	if got := IdentityScale().VisualRadius(model.KindPlanet, 6.371e6); got != 6.371e6 {
		t.Fatalf("identity radius = %v", got)
	}
}
