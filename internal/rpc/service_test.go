package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/timectrl"
)

type rpcFixture struct {
	client  *OrreryClient
	conn    *grpc.ClientConn
	engine  *core.Engine
	pump    *timectrl.FramePump
	metrics *observability.APICollector
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	bodies, err := core.DefaultCatalog().Resolve(core.ResolveOptions{Rand: rand.New(rand.NewPCG(3, 4))})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	engine, err := core.NewEngine(kb.NewKnowledgeBase(), bodies)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctrl := timectrl.NewController(nil)
	pump := timectrl.NewFramePump(ctrl, engine, time.Second, timectrl.Accelerated)

	metrics, err := observability.NewAPICollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	server := NewServer(NewService(engine, ctrl, nil, nil), nil, metrics)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &rpcFixture{client: NewOrreryClient(conn), conn: conn, engine: engine, pump: pump, metrics: metrics}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestGetSnapshot(t *testing.T) {
	f := newRPCFixture(t)
	f.pump.Step(1, 3*time.Second)

	resp, err := f.client.GetSnapshot(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	fields := resp.GetFields()
	if got := fields["sim_time"].GetNumberValue(); got != 3*86400 {
		t.Fatalf("sim_time = %v", got)
	}
	if got := fields["elapsed"].GetStringValue(); got != "Year 0, Day 3" {
		t.Fatalf("elapsed = %q", got)
	}
	bodies := fields["bodies"].GetListValue().GetValues()
	if len(bodies) != 10 {
		t.Fatalf("bodies = %d, want 10", len(bodies))
	}
	if name := bodies[0].GetStructValue().GetFields()["name"].GetStringValue(); name != "Sun" {
		t.Fatalf("first body = %q", name)
	}
	if got := testutil.ToFloat64(f.metrics.RPCRequests.WithLabelValues("OrreryService", "GetSnapshot", "OK")); got != 1 {
		t.Fatalf("rpc counter = %v, want 1", got)
	}
}

func TestDescribeBody(t *testing.T) {
	f := newRPCFixture(t)

	resp, err := f.client.DescribeBody(context.Background(), mustStruct(t, map[string]any{"name": "Earth"}))
	if err != nil {
		t.Fatalf("DescribeBody: %v", err)
	}
	info := resp.GetFields()["info"].GetStructValue().GetFields()
	if info["distance"].GetStringValue() != "1.00 AU" || info["period"].GetStringValue() != "1.00 years" {
		t.Fatalf("info = %v", info)
	}
	if state := resp.GetFields()["state"].GetStructValue(); state.GetFields()["name"].GetStringValue() != "Earth" {
		t.Fatalf("state = %v", state)
	}

	cases := []struct {
		req  map[string]any
		want codes.Code
	}{
		{map[string]any{"name": "Pluto"}, codes.NotFound},
		{map[string]any{}, codes.InvalidArgument},
		{map[string]any{"name": 4.0}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		_, err := f.client.DescribeBody(context.Background(), mustStruct(t, tc.req))
		if status.Code(err) != tc.want {
			t.Fatalf("DescribeBody(%v) code = %v, want %v", tc.req, status.Code(err), tc.want)
		}
	}
}

func TestControlTime(t *testing.T) {
	f := newRPCFixture(t)
	ctx := context.Background()

	resp, err := f.client.ControlTime(ctx, mustStruct(t, map[string]any{"action": "slower"}))
	if err != nil {
		t.Fatalf("ControlTime(slower): %v", err)
	}
	if got := resp.GetFields()["days_per_second"].GetNumberValue(); got != 0.5 {
		t.Fatalf("days_per_second = %v, want 0.5", got)
	}

	resp, err = f.client.ControlTime(ctx, mustStruct(t, map[string]any{"action": "preset", "preset": 6.0}))
	if err != nil {
		t.Fatalf("ControlTime(preset): %v", err)
	}
	if got := resp.GetFields()["label"].GetStringValue(); got != "100x (100 days/sec)" {
		t.Fatalf("label = %q", got)
	}

	f.pump.Step(1, time.Second)
	resp, err = f.client.ControlTime(ctx, mustStruct(t, map[string]any{"action": "reset"}))
	if err != nil {
		t.Fatalf("ControlTime(reset): %v", err)
	}
	if got := resp.GetFields()["sim_time"].GetNumberValue(); got != 0 || f.engine.SimTime() != 0 {
		t.Fatalf("sim_time after reset = %v", got)
	}

	cases := []struct {
		req  map[string]any
		want codes.Code
	}{
		{map[string]any{"action": "rewind"}, codes.InvalidArgument},
		{map[string]any{"action": "preset", "preset": 99.0}, codes.InvalidArgument},
		{map[string]any{"action": "preset", "preset": 1.5}, codes.InvalidArgument},
		{map[string]any{"action": "preset"}, codes.InvalidArgument},
		{map[string]any{}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		_, err := f.client.ControlTime(ctx, mustStruct(t, tc.req))
		if status.Code(err) != tc.want {
			t.Fatalf("ControlTime(%v) code = %v, want %v", tc.req, status.Code(err), tc.want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	f := newRPCFixture(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "req-42")

	var header metadata.MD
	if _, err := f.client.GetSnapshot(ctx, &emptypb.Empty{}, grpc.Header(&header)); err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got := header.Get(requestIDMetadataKey); len(got) != 1 || got[0] != "req-42" {
		t.Fatalf("response request id = %v, want req-42", got)
	}
}

func TestHealthService(t *testing.T) {
	f := newRPCFixture(t)
	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health status = %v", resp.GetStatus())
	}
}

func TestToStatusError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrap: %w", kb.ErrBodyNotFound), codes.NotFound},
		{core.ErrNoOrbit, codes.NotFound},
		{timectrl.ErrPresetOutOfRange, codes.InvalidArgument},
		{ErrInvalidRequest, codes.InvalidArgument},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tc := range cases {
		if got := status.Code(ToStatusError(tc.err)); got != tc.want {
			t.Fatalf("ToStatusError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	if ToStatusError(nil) != nil {
		t.Fatalf("ToStatusError(nil) should be nil")
	}
}
