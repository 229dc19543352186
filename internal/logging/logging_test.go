package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown", String("body", "Earth"), Bool("paused", true), Duration("took", 1500*time.Microsecond))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "shown" || rec["body"] != "Earth" || rec["paused"] != true || rec["took"] != 1.5 {
		t.Fatalf("record = %v", rec)
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "text", Output: &buf}).With(String("component", "pump"))
	log.Info(context.Background(), "tick", Int("frame", 3))
	if out := buf.String(); !strings.Contains(out, "component=pump") || !strings.Contains(out, "frame=3") {
		t.Fatalf("output = %q", out)
	}
}

func TestErrField(t *testing.T) {
	if f := Err(nil); f.Value != "" {
		t.Fatalf("Err(nil) = %v, want empty", f.Value)
	}
	if f := Err(context.Canceled); f.Key != "error" || f.Value != "context canceled" {
		t.Fatalf("Err(ctx) = %+v", f)
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warning", "error"} {
		if !ValidLevel(lvl) {
			t.Fatalf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("trace") {
		t.Fatalf("ValidLevel(trace) = true")
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if len(id) != 36 {
		t.Fatalf("request id %q is not a uuid", id)
	}
	again, same := EnsureRequestID(ctx)
	if same != id || RequestIDFromContext(again) != id {
		t.Fatalf("EnsureRequestID replaced existing id %q with %q", id, same)
	}

	var buf bytes.Buffer
	ctx, log := WithRequestLogger(ContextWithRequestID(context.Background(), "req-1"), New(Config{Output: &buf}))
	log.Info(ctx, "handled")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("output = %q", buf.String())
	}

	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected no logger on empty context")
	}
	if LoggerFromContext(ContextWithLogger(ctx, nil)) == nil {
		t.Fatalf("ContextWithLogger(nil) should store the noop logger")
	}
}
