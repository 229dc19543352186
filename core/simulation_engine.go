package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

const tracerName = "github.com/signalsfoundry/orrery/core"

// FrameRecorder receives per-frame statistics. The observability package
// provides the Prometheus implementation.
type FrameRecorder interface {
	ObserveFrame(duration time.Duration, simTime float64, bodies int)
}

// BodyView is one body in a published snapshot, in display units.
type BodyView struct {
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Parent       string     `json:"parent,omitempty"`
	Position     model.Vec3 `json:"position"`
	Relative     model.Vec3 `json:"relative"`
	Distance     float64    `json:"distance"`
	MeanAnomaly  float64    `json:"mean_anomaly"`
	TrueAnomaly  float64    `json:"true_anomaly"`
	VisualRadius float64    `json:"visual_radius"`
	Color        uint32     `json:"color"`
}

// Snapshot is the state of every body at one simulation instant.
type Snapshot struct {
	Frame      uint64     `json:"frame"`
	SimTime    float64    `json:"sim_time"`
	Elapsed    string     `json:"elapsed"`
	JulianDate float64    `json:"julian_date"`
	Bodies     []BodyView `json:"bodies"`
}

// Engine is the per-frame scheduler. Tick advances the simulation clock and
// recomputes every body in registry order, so a moon always sees its parent's
// position from the same tick.
type Engine struct {
	mu sync.Mutex

	store    *kb.KnowledgeBase
	bodies   []model.Body
	motions  []MotionModel
	elements []*Elements
	scale    Scale

	clock   timectrl.SimulationClock
	frame   uint64
	epoch   time.Time
	epochJD float64

	log     logging.Logger
	metrics FrameRecorder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithFrameRecorder wires frame metrics.
func WithFrameRecorder(r FrameRecorder) EngineOption {
	return func(e *Engine) { e.metrics = r }
}

// WithEpoch sets the calendar instant of simulation time zero.
func WithEpoch(t time.Time) EngineOption {
	return func(e *Engine) { e.epoch = t }
}

// WithScale records the display scale used for visual radii.
func WithScale(s Scale) EngineOption {
	return func(e *Engine) { e.scale = s }
}

// NewEngine registers the resolved bodies in store, which must be empty, and
// computes the frame at simulation time zero. Nothing is registered when the
// body list is invalid.
func NewEngine(store *kb.KnowledgeBase, bodies []ResolvedBody, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("NewEngine: store is nil")
	}
	e := &Engine{
		store: store,
		scale: DefaultScale(),
		epoch: time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC),
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.epochJD = julian.TimeToJD(e.epoch)

	// Snapshots pair store states with e.bodies by index, and a failed
	// registration must not leave a partial body set behind.
	if n := store.Len(); n != 0 {
		return nil, fmt.Errorf("NewEngine: store already holds %d bodies", n)
	}
	if err := checkRegistryOrder(bodies); err != nil {
		return nil, err
	}

	for _, rb := range bodies {
		if _, err := store.AddBody(rb.Body); err != nil {
			return nil, err
		}
		if sgp, ok := rb.Motion.(*SGP4MotionModel); ok {
			name := rb.Body.Name
			sgp.OnError(func(err error) {
				e.log.Warn(context.Background(), "satellite propagation failed",
					logging.String("body", name), logging.String("error", err.Error()))
			})
		}
		e.bodies = append(e.bodies, rb.Body)
		e.motions = append(e.motions, rb.Motion)
		e.elements = append(e.elements, rb.Elements)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.propagateLocked(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

func checkRegistryOrder(bodies []ResolvedBody) error {
	seen := make(map[string]struct{}, len(bodies))
	for i, rb := range bodies {
		b := rb.Body
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("NewEngine: %w: %q", kb.ErrBodyExists, b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.HasParent() && (b.Parent < 0 || b.Parent >= i) {
			return fmt.Errorf("NewEngine: %w: %q has parent index %d", kb.ErrBadParent, b.Name, b.Parent)
		}
		if rb.Motion == nil {
			return fmt.Errorf("NewEngine: %q has no motion model", b.Name)
		}
	}
	return nil
}

// Tick advances simulation time by simDelta seconds and recomputes every
// body. It implements timectrl.Target.
func (e *Engine) Tick(simDelta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Advance(simDelta)
	e.frame++
	if err := e.propagateLocked(context.Background()); err != nil {
		e.log.Error(context.Background(), "frame propagation failed", logging.String("error", err.Error()))
	}
}

// Reset returns simulation time to zero and recomputes positions.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock.Reset()
	if err := e.propagateLocked(context.Background()); err != nil {
		e.log.Error(context.Background(), "reset propagation failed", logging.String("error", err.Error()))
	}
	e.log.Info(context.Background(), "simulation clock reset")
}

// SimTime returns the current simulation time in seconds.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Seconds()
}

func (e *Engine) propagateLocked(ctx context.Context) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "Engine/propagate")
	defer span.End()

	start := time.Now()
	t := e.clock.Seconds()
	states := make([]model.BodyState, len(e.bodies))
	for i, b := range e.bodies {
		s := e.motions[i].Propagate(t)
		var parent model.Vec3
		if b.HasParent() {
			parent = states[b.Parent].Position
		}
		states[i] = model.BodyState{
			Name:        b.Name,
			Position:    r3.Add(parent, s.Offset),
			Relative:    s.Offset,
			MeanAnomaly: s.MeanAnomaly,
			TrueAnomaly: s.TrueAnomaly,
			Distance:    r3.Norm(s.Offset),
		}
	}
	span.SetAttributes(
		attribute.Float64("sim_time", t),
		attribute.Int("bodies", len(states)),
	)

	if err := e.store.PublishFrame(t, states); err != nil {
		span.RecordError(err)
		return err
	}
	if e.metrics != nil {
		e.metrics.ObserveFrame(time.Since(start), t, len(states))
	}
	return nil
}

// Snapshot returns the most recently computed frame. Frames are published
// under e.mu, so the frame number and states read here always agree.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	frame := e.frame
	simTime, states := e.store.States()
	e.mu.Unlock()
	views := make([]BodyView, len(states))
	for i, st := range states {
		b := e.bodies[i]
		views[i] = BodyView{
			Name:         b.Name,
			Kind:         b.Kind.String(),
			Parent:       b.ParentName,
			Position:     st.Position,
			Relative:     st.Relative,
			Distance:     st.Distance,
			MeanAnomaly:  st.MeanAnomaly,
			TrueAnomaly:  st.TrueAnomaly,
			VisualRadius: e.scale.VisualRadius(b.Kind, b.Radius),
			Color:        b.Color,
		}
	}
	return Snapshot{
		Frame:      frame,
		SimTime:    simTime,
		Elapsed:    timectrl.FormatElapsed(simTime),
		JulianDate: e.epochJD + simTime/secondsPerDay,
		Bodies:     views,
	}
}

// Describe returns the info panel for a body.
func (e *Engine) Describe(name string) (BodyInfo, error) {
	b, err := e.store.GetBody(name)
	if err != nil {
		return BodyInfo{}, err
	}
	return DescribeBody(b), nil
}

// OrbitPath samples a body's display-scaled orbit, centred on its parent.
func (e *Engine) OrbitPath(name string, segments int) ([]model.Vec3, error) {
	for i, b := range e.bodies {
		if b.Name != name {
			continue
		}
		if e.elements[i] == nil {
			return nil, fmt.Errorf("%w: %q has no Keplerian orbit", ErrNoOrbit, name)
		}
		return SampleOrbitPath(*e.elements[i], segments)
	}
	return nil, fmt.Errorf("%w: %q", kb.ErrBodyNotFound, name)
}

// Bodies returns the registered bodies in tick order.
func (e *Engine) Bodies() []model.Body {
	return append([]model.Body(nil), e.bodies...)
}

// Epoch is the calendar instant of simulation time zero.
func (e *Engine) Epoch() time.Time { return e.epoch }
