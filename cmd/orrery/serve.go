package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/api"
	"github.com/signalsfoundry/orrery/internal/config"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/internal/rpc"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and serve it over HTTP, WebSocket and gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateListeners(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f := cmd.Flags()
	f.String("http-addr", "", "HTTP listen address (empty disables)")
	f.String("grpc-addr", "", "gRPC listen address (empty disables)")
	f.Duration("interval", 0, "frame interval")
	f.String("mode", "", "frame mode: realtime or accelerated")
	f.Int("preset", 0, "initial rate preset index")
	f.Bool("tracing", false, "enable OpenTelemetry tracing")

	cmd.PreRunE = func(c *cobra.Command, _ []string) error {
		return config.BindFlags(a.v, c.Flags(), map[string]string{
			"http-addr": "http.addr",
			"grpc-addr": "grpc.addr",
			"interval":  "frame.interval",
			"mode":      "frame.mode",
			"preset":    "time.preset",
			"tracing":   "tracing.enabled",
		})
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return err
	}
	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		return err
	}

	sim, err := buildSimulation(cfg, log, core.WithFrameRecorder(simMetrics))
	if err != nil {
		return err
	}
	st := sim.ctrl.State()
	simMetrics.SetRate(st.DaysPerSecond, st.Paused)

	log.Info(ctx, "simulation ready",
		logging.Int("bodies", len(sim.engine.Bodies())),
		logging.String("epoch", sim.engine.Epoch().Format("2006-01-02T15:04:05Z07:00")),
		logging.String("mode", cfg.FrameMode.String()),
		logging.String("rate", st.Label))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 0

	pumpDone := sim.pump.Start(ctx, 0)

	if cfg.HTTPAddr != "" {
		srv, err := api.NewServer(api.Options{
			Addr:         cfg.HTTPAddr,
			Sim:          sim.engine,
			Frames:       sim.store,
			Controller:   sim.ctrl,
			Logger:       log,
			Metrics:      apiMetrics,
			SimMetrics:   simMetrics,
			ControlRPS:   cfg.ControlRPS,
			ControlBurst: cfg.ControlBurst,
			StreamsPerIP: cfg.StreamsPerIP,
			StreamQueue:  cfg.StreamQueueSize,
		})
		if err != nil {
			return err
		}
		running++
		go func() { errCh <- srv.ListenAndServe(ctx) }()
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			cancel()
			<-pumpDone
			return err
		}
		server := rpc.NewServer(rpc.NewService(sim.engine, sim.ctrl, log, simMetrics), log, apiMetrics)
		log.Info(ctx, "starting gRPC server", logging.String("addr", lis.Addr().String()))
		running++
		go func() { errCh <- server.Serve(lis) }()
		go func() {
			<-ctx.Done()
			server.GracefulStop()
		}()
	}

	// The first failing server takes the others down with it.
	var firstErr error
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			log.Error(ctx, "server exited", logging.Err(err))
			cancel()
		}
	}
	cancel()
	<-pumpDone
	log.Info(context.Background(), "shutdown complete")
	return firstErr
}
