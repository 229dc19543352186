package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/signalsfoundry/orrery/model"
)

var (
	ErrDuplicateBody = errors.New("duplicate body name")
	ErrUnknownParent = errors.New("unknown parent body")
	ErrNestedMoon    = errors.New("parent body is not a planet")
	ErrEmptyName     = errors.New("body has no name")
	ErrNoOrbit       = errors.New("body has no orbit")
)

const (
	secondsPerDay = 86400.0
	defaultColor  = 0x888888
	sunRadius     = 6.96e8
	sunMass       = 1.989e30
)

// BodyRecord is one entry of a catalogue document. All values are SI.
// Optional fields are omitted from JSON when zero.
type BodyRecord struct {
	Name           string   `json:"name"`
	Radius         float64  `json:"radius"`
	SemiMajorAxis  float64  `json:"semiMajorAxis"`
	Eccentricity   float64  `json:"eccentricity,omitempty"`
	OrbitalPeriod  float64  `json:"orbitalPeriod"`
	Mass           float64  `json:"mass,omitempty"`
	ParentBodyName string   `json:"parentBodyName,omitempty"`
	ParentPlanet   string   `json:"parentPlanet,omitempty"` // older documents
	Color          uint32   `json:"color,omitempty"`
	MeanAnomaly    *float64 `json:"meanAnomaly,omitempty"`
	TLE1           string   `json:"tle1,omitempty"`
	TLE2           string   `json:"tle2,omitempty"`
}

func (r BodyRecord) parentName() string {
	if r.ParentBodyName != "" {
		return r.ParentBodyName
	}
	return r.ParentPlanet
}

// Catalog is the static body data loaded once at startup.
type Catalog struct {
	Star    BodyRecord
	Planets []BodyRecord
	// Moons also carries TLE satellites; a record with both TLE lines is a
	// satellite of its parent.
	Moons []BodyRecord
}

// DefaultSun is the star placed at the origin.
func DefaultSun() BodyRecord {
	return BodyRecord{Name: "Sun", Radius: sunRadius, Mass: sunMass, Color: 0xffdd44}
}

// DefaultCatalog is the built-in body set used when no data can be loaded.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Star: DefaultSun(),
		Planets: []BodyRecord{
			{Name: "Mercury", Color: 0x8c7853, Radius: 2.44e6, Mass: 3.301e23, SemiMajorAxis: 5.79e10, Eccentricity: 0.206, OrbitalPeriod: 88 * secondsPerDay},
			{Name: "Venus", Color: 0xffc649, Radius: 6.05e6, Mass: 4.867e24, SemiMajorAxis: 1.082e11, Eccentricity: 0.007, OrbitalPeriod: 225 * secondsPerDay},
			{Name: "Earth", Color: 0x6b93d6, Radius: 6.371e6, Mass: 5.972e24, SemiMajorAxis: 1.496e11, Eccentricity: 0.017, OrbitalPeriod: 365.25 * secondsPerDay},
			{Name: "Mars", Color: 0xc1440e, Radius: 3.39e6, Mass: 6.417e23, SemiMajorAxis: 2.279e11, Eccentricity: 0.093, OrbitalPeriod: 687 * secondsPerDay},
			{Name: "Jupiter", Color: 0xd8ca9d, Radius: 6.99e7, Mass: 1.898e27, SemiMajorAxis: 7.785e11, Eccentricity: 0.049, OrbitalPeriod: 4333 * secondsPerDay},
			{Name: "Saturn", Color: 0xead6b8, Radius: 5.82e7, Mass: 5.683e26, SemiMajorAxis: 1.432e12, Eccentricity: 0.056, OrbitalPeriod: 10759 * secondsPerDay},
			{Name: "Uranus", Color: 0xd1e7e7, Radius: 2.54e7, Mass: 8.681e25, SemiMajorAxis: 2.867e12, Eccentricity: 0.046, OrbitalPeriod: 30687 * secondsPerDay},
			{Name: "Neptune", Color: 0x5b5ddf, Radius: 2.46e7, Mass: 1.024e26, SemiMajorAxis: 4.515e12, Eccentricity: 0.010, OrbitalPeriod: 60190 * secondsPerDay},
		},
		Moons: []BodyRecord{
			{Name: "Moon", Color: 0xaaaaaa, Radius: 1.737e6, Mass: 7.342e22, SemiMajorAxis: 3.844e8, Eccentricity: 0.0549, OrbitalPeriod: 27.3 * secondsPerDay, ParentBodyName: "Earth"},
		},
	}
}

// LoadCatalog decodes a planet document and an optional moon document, each
// a JSON array of BodyRecord. The star is always the built-in sun unless the
// planet document contains a record named "Sun".
func LoadCatalog(planets, moons io.Reader) (*Catalog, error) {
	if planets == nil {
		return nil, fmt.Errorf("LoadCatalog: planet document is nil")
	}
	var planetRecs []BodyRecord
	if err := json.NewDecoder(planets).Decode(&planetRecs); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode planets: %w", err)
	}
	var moonRecs []BodyRecord
	if moons != nil {
		if err := json.NewDecoder(moons).Decode(&moonRecs); err != nil {
			return nil, fmt.Errorf("LoadCatalog: decode moons: %w", err)
		}
	}

	cat := &Catalog{Star: DefaultSun(), Moons: moonRecs}
	for _, rec := range planetRecs {
		if rec.Name == "Sun" {
			cat.Star = rec
			continue
		}
		cat.Planets = append(cat.Planets, rec)
	}
	if len(cat.Planets) == 0 {
		return nil, fmt.Errorf("LoadCatalog: planet document has no planets")
	}
	return cat, nil
}

// LoadCatalogFiles reads the catalogue from disk. moonPath may be empty.
func LoadCatalogFiles(planetPath, moonPath string) (*Catalog, error) {
	pf, err := os.Open(planetPath)
	if err != nil {
		return nil, fmt.Errorf("open planet catalogue: %w", err)
	}
	defer pf.Close()

	var moons io.Reader
	if moonPath != "" {
		mf, err := os.Open(moonPath)
		if err != nil {
			return nil, fmt.Errorf("open moon catalogue: %w", err)
		}
		defer mf.Close()
		moons = mf
	}
	return LoadCatalog(pf, moons)
}

// ResolvedBody pairs an immutable body with the motion model that moves it.
type ResolvedBody struct {
	Body   model.Body
	Motion MotionModel
	// Elements is set for Kepler bodies and holds the display-scaled orbit.
	Elements *Elements
}

// ResolveOptions controls how a catalogue becomes live bodies.
type ResolveOptions struct {
	// Scale defaults to DefaultScale when its Distance is zero.
	Scale Scale
	// Rand draws the initial mean anomaly for records without one. A nil
	// source places every such body at perihelion.
	Rand *rand.Rand
	// Epoch is the wall-clock instant of simulation time zero, used by
	// satellite propagation.
	Epoch time.Time
}

// Resolve validates the catalogue and produces bodies in registry order:
// the star, planets, moons, then satellites. Parent names are resolved to
// indices here, once.
func (c *Catalog) Resolve(opts ResolveOptions) ([]ResolvedBody, error) {
	if opts.Scale.Distance == 0 {
		opts.Scale = DefaultScale()
	}
	out := make([]ResolvedBody, 0, 1+len(c.Planets)+len(c.Moons))
	index := make(map[string]int, cap(out))

	add := func(rb ResolvedBody) error {
		if rb.Body.Name == "" {
			return ErrEmptyName
		}
		if _, dup := index[rb.Body.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateBody, rb.Body.Name)
		}
		index[rb.Body.Name] = len(out)
		out = append(out, rb)
		return nil
	}

	star := c.Star
	if star.Name == "" {
		star = DefaultSun()
	}
	if err := add(ResolvedBody{
		Body:   bodyFromRecord(star, model.KindStar, model.NoParent),
		Motion: StaticMotionModel{},
	}); err != nil {
		return nil, err
	}

	for _, rec := range c.Planets {
		rb, err := keplerBody(rec, model.KindPlanet, model.NoParent, opts)
		if err != nil {
			return nil, err
		}
		if err := add(rb); err != nil {
			return nil, err
		}
	}

	var satellites []BodyRecord
	for _, rec := range c.Moons {
		if rec.TLE1 != "" && rec.TLE2 != "" {
			satellites = append(satellites, rec)
			continue
		}
		parent, err := planetParent(rec, index, out)
		if err != nil {
			return nil, err
		}
		rb, err := keplerBody(rec, model.KindMoon, parent, opts)
		if err != nil {
			return nil, err
		}
		if err := add(rb); err != nil {
			return nil, err
		}
	}

	for _, rec := range satellites {
		parent, err := planetParent(rec, index, out)
		if err != nil {
			return nil, err
		}
		motion, err := NewSGP4MotionModel(rec.TLE1, rec.TLE2, opts.Epoch, opts.Scale.SatelliteDistance())
		if err != nil {
			return nil, fmt.Errorf("satellite %q: %w", rec.Name, err)
		}
		b := bodyFromRecord(rec, model.KindSatellite, parent)
		b.TLE1, b.TLE2 = rec.TLE1, rec.TLE2
		if err := add(ResolvedBody{Body: b, Motion: motion}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func planetParent(rec BodyRecord, index map[string]int, resolved []ResolvedBody) (int, error) {
	name := rec.parentName()
	idx, ok := index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q (for %q)", ErrUnknownParent, name, rec.Name)
	}
	if resolved[idx].Body.Kind != model.KindPlanet {
		return 0, fmt.Errorf("%w: %q orbits %q (%s)", ErrNestedMoon, rec.Name, name, resolved[idx].Body.Kind)
	}
	return idx, nil
}

func keplerBody(rec BodyRecord, kind model.BodyKind, parent int, opts ResolveOptions) (ResolvedBody, error) {
	b := bodyFromRecord(rec, kind, parent)
	switch {
	case rec.MeanAnomaly != nil:
		b.Orbit.MeanAnomalyEpoch = *rec.MeanAnomaly
	case opts.Rand != nil:
		b.Orbit.MeanAnomalyEpoch = opts.Rand.Float64() * 2 * math.Pi
	}

	el, err := ElementsFromOrbit(b.Orbit, opts.Scale.OrbitAxis(kind, b.Orbit.SemiMajorAxis))
	if err != nil {
		return ResolvedBody{}, fmt.Errorf("%s %q: %w", kind, rec.Name, err)
	}
	return ResolvedBody{Body: b, Motion: KeplerMotionModel{Elements: el}, Elements: &el}, nil
}

func bodyFromRecord(rec BodyRecord, kind model.BodyKind, parent int) model.Body {
	b := model.Body{
		Name:   rec.Name,
		Kind:   kind,
		Radius: rec.Radius,
		Mass:   rec.Mass,
		Color:  rec.Color,
		Orbit: model.Orbit{
			SemiMajorAxis: rec.SemiMajorAxis,
			Eccentricity:  rec.Eccentricity,
			Period:        rec.OrbitalPeriod,
		},
		Parent: parent,
	}
	if parent != model.NoParent {
		b.ParentName = rec.parentName()
	}
	if b.Color == 0 {
		b.Color = defaultColor
	}
	return b
}
