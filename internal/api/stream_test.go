package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func dialStream(t *testing.T, srv *httptest.Server) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) FrameMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg FrameMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamPushesFrames(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readFrame(t, conn)
	if first.Type != "snapshot" || first.SimTime != 0 || len(first.Bodies) != 10 {
		t.Fatalf("first message = %s t=%v bodies=%d", first.Type, first.SimTime, len(first.Bodies))
	}
	waitFor(t, func() bool { return f.server.hub.size() == 1 })
	if got := testutil.ToFloat64(f.sim.StreamConnections); got != 1 {
		t.Fatalf("stream gauge = %v, want 1", got)
	}

	f.pump.Step(1, time.Second)
	msg := readFrame(t, conn)
	if msg.Type != "frame" || msg.SimTime != 86400 || msg.Frame != 1 {
		t.Fatalf("frame message = %s t=%v frame=%d", msg.Type, msg.SimTime, msg.Frame)
	}
}

func TestStreamLimitPerIP(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.StreamsPerIP = 1 })
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readFrame(t, conn)

	_, resp, err := dialStream(t, srv)
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second dial err = %v, resp = %v; want 429 handshake failure", err, resp)
	}

	conn.Close()
	waitFor(t, func() bool { return f.server.hub.size() == 0 })
	waitFor(t, func() bool { return testutil.ToFloat64(f.sim.StreamConnections) == 0 })

	var conn2 *websocket.Conn
	waitFor(t, func() bool {
		c, _, err := dialStream(t, srv)
		if err != nil {
			return false
		}
		conn2 = c
		return true
	})
	defer conn2.Close()
	readFrame(t, conn2)
}

func TestCloseDisconnectsStreams(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn)

	f.server.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after Close = %v, want normal closure", err)
	}
	if _, _, err := dialStream(t, srv); err == nil {
		t.Fatalf("dial after Close should fail")
	}
}
