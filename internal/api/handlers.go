package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

const maxOrbitSegments = 4096

// TimeStatus is the controller state plus the current simulation time.
type TimeStatus struct {
	timectrl.State
	SimTime float64 `json:"sim_time"`
	Elapsed string  `json:"elapsed"`
}

// BodyDetail is a body's description and its latest state.
type BodyDetail struct {
	Info  core.BodyInfo `json:"info"`
	State core.BodyView `json:"state"`
}

// OrbitResponse is a sampled orbit centred on the body's parent.
type OrbitResponse struct {
	Name     string       `json:"name"`
	Parent   string       `json:"parent,omitempty"`
	Segments int          `json:"segments"`
	Points   []model.Vec3 `json:"points"`
}

type controlRequest struct {
	Preset *int `json:"preset,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kb.ErrBodyNotFound), errors.Is(err, core.ErrNoOrbit):
		return http.StatusNotFound
	case errors.Is(err, timectrl.ErrUnknownAction),
		errors.Is(err, timectrl.ErrPresetOutOfRange),
		errors.Is(err, core.ErrInvalidElements):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		if l := logging.LoggerFromContext(r.Context()); l != nil {
			l.Error(r.Context(), "request failed", logging.Err(err))
		}
	}
	writeError(w, code, err.Error())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBodies(w http.ResponseWriter, r *http.Request) {
	bodies := s.opts.Sim.Bodies()
	out := make([]core.BodyInfo, len(bodies))
	for i, b := range bodies {
		out[i] = core.DescribeBody(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBody(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := s.opts.Sim.Describe(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	detail := BodyDetail{Info: info}
	for _, v := range s.opts.Sim.Snapshot().Bodies {
		if v.Name == name {
			detail.State = v
			break
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleOrbit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	segments := core.DefaultOrbitSegments
	if v := r.URL.Query().Get("segments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 3 || n > maxOrbitSegments {
			writeError(w, http.StatusBadRequest, "invalid segments parameter, must be 3-4096")
			return
		}
		segments = n
	}
	points, err := s.opts.Sim.OrbitPath(name, segments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := OrbitResponse{Name: name, Segments: segments, Points: points}
	if info, err := s.opts.Sim.Describe(name); err == nil {
		resp.Parent = info.Parent
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Sim.Snapshot())
}

func (s *Server) timeStatus() TimeStatus {
	snap := s.opts.Sim.Snapshot()
	return TimeStatus{
		State:   s.opts.Controller.State(),
		SimTime: snap.SimTime,
		Elapsed: snap.Elapsed,
	}
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.timeStatus())
}

// handleTimeControl applies pause, resume, toggle, faster, slower, reset or
// preset. The preset action takes {"preset": n} or ?index=n.
func (s *Server) handleTimeControl(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	ctrl := s.opts.Controller

	var err error
	if action == "preset" {
		var idx int
		idx, err = presetIndex(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = ctrl.SetPreset(idx)
	} else {
		err = ctrl.Apply(action)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	st := ctrl.State()
	s.opts.SimMetrics.SetRate(st.DaysPerSecond, st.Paused)
	if l := logging.LoggerFromContext(r.Context()); l != nil {
		l.Info(r.Context(), "time control applied",
			logging.String("action", action),
			logging.String("rate", st.Label),
			logging.Bool("paused", st.Paused))
	}
	writeJSON(w, http.StatusOK, s.timeStatus())
}

func presetIndex(r *http.Request) (int, error) {
	if v := r.URL.Query().Get("index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.New("invalid index parameter")
		}
		return n, nil
	}
	var req controlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		return 0, errors.New("preset requires ?index=n or a JSON body {\"preset\": n}")
	}
	if req.Preset == nil {
		return 0, errors.New("missing preset")
	}
	return *req.Preset, nil
}
