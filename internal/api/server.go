// Package api exposes the simulation over HTTP: JSON read endpoints, time
// control and a WebSocket frame stream.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
	"github.com/signalsfoundry/orrery/timectrl"
)

// Simulation is the read side of the engine served by the API.
type Simulation interface {
	Snapshot() core.Snapshot
	Describe(name string) (core.BodyInfo, error)
	OrbitPath(name string, segments int) ([]model.Vec3, error)
	Bodies() []model.Body
}

// FrameSource notifies subscribers after every published frame.
type FrameSource interface {
	Subscribe(fn func(kb.Event)) func()
}

// Options wires the server's dependencies.
type Options struct {
	Addr       string
	Sim        Simulation
	Frames     FrameSource
	Controller *timectrl.Controller

	Logger     logging.Logger
	Metrics    *observability.APICollector
	SimMetrics *observability.SimulationCollector
	// MetricsHandler serves GET /metrics; defaults to Metrics.Handler().
	MetricsHandler http.Handler

	ControlRPS   float64
	ControlBurst int
	StreamsPerIP int
	StreamQueue  int
	TrustProxy   bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	opts       Options
	log        logging.Logger

	limiter *ipRateLimiter
	streams *streamLimiter
	hub     *hub
}

// NewServer creates a configured server and starts its frame fan-out. Call
// Close to release the frame subscription.
func NewServer(opts Options) (*Server, error) {
	if opts.Sim == nil || opts.Controller == nil {
		return nil, errors.New("api: simulation and controller are required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.ControlRPS <= 0 {
		opts.ControlRPS = 5
	}
	if opts.ControlBurst < 1 {
		opts.ControlBurst = 10
	}
	if opts.StreamsPerIP < 1 {
		opts.StreamsPerIP = 4
	}
	if opts.StreamQueue < 1 {
		opts.StreamQueue = 8
	}
	if opts.MetricsHandler == nil && opts.Metrics != nil {
		opts.MetricsHandler = opts.Metrics.Handler()
	}

	s := &Server{
		opts:    opts,
		log:     opts.Logger.With(logging.String("component", "api")),
		limiter: newIPRateLimiter(rate.Limit(opts.ControlRPS), opts.ControlBurst),
		streams: newStreamLimiter(opts.StreamsPerIP),
	}
	s.hub = newHub(opts.Sim, opts.StreamQueue, s.log)
	if opts.Frames != nil {
		s.hub.attach(opts.Frames)
	}
	go s.hub.run()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}
	mux.HandleFunc("GET /api/v1/bodies", s.handleListBodies)
	mux.HandleFunc("GET /api/v1/bodies/{name}", s.handleGetBody)
	mux.HandleFunc("GET /api/v1/bodies/{name}/orbit", s.handleOrbit)
	mux.HandleFunc("GET /api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/v1/time", s.handleTime)
	mux.Handle("POST /api/v1/time/{action}", s.rateLimited(http.HandlerFunc(s.handleTimeControl)))
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Build middleware chain: metrics -> logging -> mux.
	var handler http.Handler = mux
	handler = loggingMiddleware(s.log)(handler)
	handler = metricsMiddleware(s.opts.Metrics, mux)(handler)
	return handler
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.log.Info(ctx, "http server listening", logging.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Close stops the frame fan-out and disconnects stream clients.
func (s *Server) Close() {
	s.hub.close()
}
