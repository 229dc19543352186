package core

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/orrery/model"
)

const testPlanets = `[
  {"name": "Earth", "radius": 6.371e6, "semiMajorAxis": 1.496e11, "eccentricity": 0.017, "orbitalPeriod": 31557600, "color": 7050198},
  {"name": "Mars", "radius": 3.39e6, "semiMajorAxis": 2.279e11, "eccentricity": 0.093, "orbitalPeriod": 59356800, "meanAnomaly": 1.5}
]`

const testMoons = `[
  {"name": "Moon", "radius": 1.737e6, "semiMajorAxis": 3.844e8, "eccentricity": 0.0549, "orbitalPeriod": 2358720, "parentBodyName": "Earth"},
  {"name": "Phobos", "radius": 11267, "semiMajorAxis": 9.376e6, "eccentricity": 0.0151, "orbitalPeriod": 27554, "parentPlanet": "Mars"}
]`

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog(strings.NewReader(testPlanets), strings.NewReader(testMoons))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if cat.Star.Name != "Sun" {
		t.Fatalf("star = %q, want built-in Sun", cat.Star.Name)
	}
	if len(cat.Planets) != 2 || len(cat.Moons) != 2 {
		t.Fatalf("got %d planets, %d moons", len(cat.Planets), len(cat.Moons))
	}

	bodies, err := cat.Resolve(ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantOrder := []string{"Sun", "Earth", "Mars", "Moon", "Phobos"}
	for i, name := range wantOrder {
		if bodies[i].Body.Name != name {
			t.Fatalf("bodies[%d] = %q, want %q", i, bodies[i].Body.Name, name)
		}
	}
	phobos := bodies[4].Body
	if phobos.Kind != model.KindMoon || phobos.Parent != 2 || phobos.ParentName != "Mars" {
		t.Fatalf("phobos = %+v, want moon of Mars", phobos)
	}
	if got := bodies[2].Body.Orbit.MeanAnomalyEpoch; got != 1.5 {
		t.Fatalf("Mars mean anomaly = %v, want 1.5 from record", got)
	}
	if got := bodies[1].Body.Orbit.MeanAnomalyEpoch; got != 0 {
		t.Fatalf("Earth mean anomaly without rng = %v, want 0", got)
	}
	if bodies[0].Elements != nil {
		t.Fatalf("star should have no elements")
	}
}

func TestResolveDefaultsMissingColor(t *testing.T) {
	cat, err := LoadCatalog(strings.NewReader(testPlanets), strings.NewReader(testMoons))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	bodies, err := cat.Resolve(ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := map[string]uint32{"Sun": 0xffdd44, "Earth": 7050198, "Mars": 0x888888, "Moon": 0x888888}
	for _, rb := range bodies {
		if c, ok := want[rb.Body.Name]; ok && rb.Body.Color != c {
			t.Fatalf("%s color = %#x, want %#x", rb.Body.Name, rb.Body.Color, c)
		}
	}
}

func TestLoadCatalogSunOverride(t *testing.T) {
	doc := `[{"name": "Sun", "radius": 7e8, "mass": 2e30}, {"name": "Earth", "radius": 1, "semiMajorAxis": 1, "orbitalPeriod": 1}]`
	cat, err := LoadCatalog(strings.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if cat.Star.Radius != 7e8 || len(cat.Planets) != 1 {
		t.Fatalf("catalog = %+v", cat)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":  `[{"name": `,
		"no planets": `[]`,
		"only sun":   `[{"name": "Sun"}]`,
	}
	for name, doc := range cases {
		if _, err := LoadCatalog(strings.NewReader(doc), nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadCatalog(nil, nil); err == nil {
		t.Fatalf("nil planets: expected error")
	}
}

func TestLoadCatalogFiles(t *testing.T) {
	dir := t.TempDir()
	planets := filepath.Join(dir, "planets.json")
	if err := os.WriteFile(planets, []byte(testPlanets), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := LoadCatalogFiles(planets, "")
	if err != nil {
		t.Fatalf("LoadCatalogFiles: %v", err)
	}
	if len(cat.Moons) != 0 {
		t.Fatalf("moons = %d, want none", len(cat.Moons))
	}
	if _, err := LoadCatalogFiles(filepath.Join(dir, "missing.json"), ""); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestBundledCatalogResolves(t *testing.T) {
	cat, err := LoadCatalogFiles(filepath.Join("..", "data", "planets.json"), filepath.Join("..", "data", "moons.json"))
	if err != nil {
		t.Fatalf("LoadCatalogFiles: %v", err)
	}
	bodies, err := cat.Resolve(ResolveOptions{Epoch: issEpoch})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(bodies) != 18 {
		t.Fatalf("resolved %d bodies, want 18", len(bodies))
	}
	for i, rb := range bodies {
		if rb.Body.HasParent() && rb.Body.Parent >= i {
			t.Fatalf("%s resolved before its parent", rb.Body.Name)
		}
	}
	if last := bodies[len(bodies)-1].Body; last.Name != "ISS" || last.Kind != model.KindSatellite {
		t.Fatalf("last body = %s (%s), want ISS satellite", last.Name, last.Kind)
	}
}

func TestResolveRejectsBadCatalogues(t *testing.T) {
	earth := BodyRecord{Name: "Earth", Radius: 1, SemiMajorAxis: 1.496e11, Eccentricity: 0.017, OrbitalPeriod: 3e7}
	moon := BodyRecord{Name: "Moon", Radius: 1, SemiMajorAxis: 3.8e8, OrbitalPeriod: 2e6, ParentBodyName: "Earth"}

	cases := []struct {
		name string
		cat  Catalog
		want error
	}{
		{"unknown parent", Catalog{Planets: []BodyRecord{earth}, Moons: []BodyRecord{{Name: "Io", SemiMajorAxis: 1, OrbitalPeriod: 1, ParentBodyName: "Jupiter"}}}, ErrUnknownParent},
		{"moon of moon", Catalog{Planets: []BodyRecord{earth}, Moons: []BodyRecord{moon, {Name: "Moonmoon", SemiMajorAxis: 1, OrbitalPeriod: 1, ParentBodyName: "Moon"}}}, ErrNestedMoon},
		{"moon of star", Catalog{Planets: []BodyRecord{earth}, Moons: []BodyRecord{{Name: "Vulcan", SemiMajorAxis: 1, OrbitalPeriod: 1, ParentBodyName: "Sun"}}}, ErrNestedMoon},
		{"duplicate", Catalog{Planets: []BodyRecord{earth, earth}}, ErrDuplicateBody},
		{"empty name", Catalog{Planets: []BodyRecord{{SemiMajorAxis: 1, OrbitalPeriod: 1}}}, ErrEmptyName},
		{"hyperbolic", Catalog{Planets: []BodyRecord{{Name: "Oumuamua", SemiMajorAxis: 1, Eccentricity: 1.2, OrbitalPeriod: 1}}}, ErrInvalidElements},
		{"zero period", Catalog{Planets: []BodyRecord{{Name: "Stuck", SemiMajorAxis: 1}}}, ErrInvalidElements},
	}
	for _, tc := range cases {
		if _, err := tc.cat.Resolve(ResolveOptions{}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestResolveSeededAnomalies(t *testing.T) {
	resolve := func() []ResolvedBody {
		bodies, err := DefaultCatalog().Resolve(ResolveOptions{Rand: rand.New(rand.NewPCG(7, 7))})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		return bodies
	}
	a, b := resolve(), resolve()
	for i := range a {
		if a[i].Body.Orbit.MeanAnomalyEpoch != b[i].Body.Orbit.MeanAnomalyEpoch {
			t.Fatalf("%s: seeded anomaly differs between runs", a[i].Body.Name)
		}
	}
	if a[1].Body.Orbit.MeanAnomalyEpoch == 0 {
		t.Fatalf("expected random initial anomaly for %s", a[1].Body.Name)
	}
}

func TestResolveSatellites(t *testing.T) {
	cat := DefaultCatalog()
	cat.Moons = append([]BodyRecord{{Name: "ISS", ParentBodyName: "Earth", TLE1: issTLE1, TLE2: issTLE2}}, cat.Moons...)

	bodies, err := cat.Resolve(ResolveOptions{Epoch: issEpoch})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	last := bodies[len(bodies)-1]
	if last.Body.Name != "ISS" || last.Body.Kind != model.KindSatellite {
		t.Fatalf("last body = %+v, want ISS satellite after moons", last.Body)
	}
	if _, ok := last.Motion.(*SGP4MotionModel); !ok {
		t.Fatalf("ISS motion = %T, want *SGP4MotionModel", last.Motion)
	}
	if last.Body.ParentName != "Earth" || bodies[last.Body.Parent].Body.Name != "Earth" {
		t.Fatalf("ISS parent = %d (%q)", last.Body.Parent, last.Body.ParentName)
	}

	cat.Moons[0].TLE2 = "garbage"
	if _, err := cat.Resolve(ResolveOptions{Epoch: issEpoch}); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("bad TLE error = %v, want ErrInvalidTLE", err)
	}
}

func TestDescribeBody(t *testing.T) {
	cases := []struct {
		body model.Body
		want BodyInfo
	}{
		{
			body: model.Body{Name: "Sun", Kind: model.KindStar, Radius: 6.96e8, Mass: 1.989e30},
			want: BodyInfo{Name: "Sun", Kind: "star", Mass: "1.99e+30 kg", Radius: "696000 km", Distance: "0 (center)", Period: "-"},
		},
		{
			body: model.Body{Name: "Mercury", Kind: model.KindPlanet, Radius: 2.44e6, Mass: 3.301e23, Orbit: model.Orbit{SemiMajorAxis: 5.79e10, Period: 88 * secondsPerDay}},
			want: BodyInfo{Name: "Mercury", Kind: "planet", Mass: "3.30e+23 kg", Radius: "2440 km", Distance: "0.39 AU", Period: "88.0 days"},
		},
		{
			body: model.Body{Kind: model.KindMoon, ParentName: "Earth", Orbit: model.Orbit{SemiMajorAxis: 3.844e8, Period: 27.3 * secondsPerDay}},
			want: BodyInfo{Name: "Unknown", Kind: "moon", Parent: "Earth", Mass: "-", Radius: "-", Distance: "0.00 AU", Period: "27.3 days"},
		},
	}
	for _, tc := range cases {
		if got := DescribeBody(tc.body); got != tc.want {
			t.Fatalf("DescribeBody(%q) = %+v, want %+v", tc.body.Name, got, tc.want)
		}
	}
}
