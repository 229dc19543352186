package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/timectrl"
)

// Simulation is the part of the engine the RPC service reads.
type Simulation interface {
	Snapshot() core.Snapshot
	Describe(name string) (core.BodyInfo, error)
}

// Service implements OrreryServer over a running simulation.
type Service struct {
	sim     Simulation
	ctrl    *timectrl.Controller
	log     logging.Logger
	metrics *observability.SimulationCollector
}

var _ OrreryServer = (*Service)(nil)

// NewService builds the RPC service. metrics may be nil.
func NewService(sim Simulation, ctrl *timectrl.Controller, log logging.Logger, metrics *observability.SimulationCollector) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{sim: sim, ctrl: ctrl, log: log, metrics: metrics}
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

// GetSnapshot returns the latest frame.
func (s *Service) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	_, span := StartChildSpan(ctx, "Orrery/snapshot", "")
	defer span.End()

	snap := s.sim.Snapshot()
	span.SetAttributes(attribute.Float64("sim_time", snap.SimTime), attribute.Int("bodies", len(snap.Bodies)))
	out, err := toStruct(snap)
	return out, ToStatusError(err)
}

// DescribeBody takes {"name": "..."} and returns the body's info panel and
// current state.
func (s *Service) DescribeBody(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "name")
	if name == "" {
		return nil, ToStatusError(fmt.Errorf("%w: name is required", ErrInvalidRequest))
	}
	_, span := StartChildSpan(ctx, "Orrery/describe", name)
	defer span.End()

	info, err := s.sim.Describe(name)
	if err != nil {
		span.RecordError(err)
		return nil, ToStatusError(err)
	}
	detail := struct {
		Info  core.BodyInfo  `json:"info"`
		State *core.BodyView `json:"state,omitempty"`
	}{Info: info}
	for _, v := range s.sim.Snapshot().Bodies {
		if v.Name == name {
			detail.State = &v
			break
		}
	}
	out, err := toStruct(detail)
	return out, ToStatusError(err)
}

// ControlTime takes {"action": "..."} with action one of pause, resume,
// toggle, faster, slower, reset or preset; preset also needs
// {"preset": n}. It returns the resulting controller state.
func (s *Service) ControlTime(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	action := stringField(req, "action")
	if action == "" {
		return nil, ToStatusError(fmt.Errorf("%w: action is required", ErrInvalidRequest))
	}

	var err error
	if action == "preset" {
		v, ok := req.GetFields()["preset"]
		n := v.GetNumberValue()
		if !ok || n != math.Trunc(n) {
			return nil, ToStatusError(fmt.Errorf("%w: preset must be an integer", ErrInvalidRequest))
		}
		err = s.ctrl.SetPreset(int(n))
	} else {
		err = s.ctrl.Apply(action)
	}
	if err != nil {
		return nil, ToStatusError(err)
	}

	st := s.ctrl.State()
	s.metrics.SetRate(st.DaysPerSecond, st.Paused)
	s.logger(ctx).Info(ctx, "time control applied",
		logging.String("action", action),
		logging.String("rate", st.Label),
		logging.Bool("paused", st.Paused))

	snap := s.sim.Snapshot()
	out, err := toStruct(struct {
		timectrl.State
		SimTime float64 `json:"sim_time"`
		Elapsed string  `json:"elapsed"`
	}{st, snap.SimTime, snap.Elapsed})
	return out, ToStatusError(err)
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}
