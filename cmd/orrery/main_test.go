package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/config"
	"github.com/signalsfoundry/orrery/kb"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunAcceleratedFrames(t *testing.T) {
	out, err := execute(t, "--seed", "7", "--log-level", "error", "run", "--frames", "10", "--format", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var snap core.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode snapshot: %v\n%s", err, out)
	}
	if snap.Frame != 10 {
		t.Fatalf("frame = %d, want 10", snap.Frame)
	}
	// Ten one-second frames at the default 1 day/s.
	if snap.SimTime != 10*86400 {
		t.Fatalf("sim time = %v, want %v", snap.SimTime, 10*86400)
	}
	if len(snap.Bodies) != 10 || snap.Bodies[0].Name != "Sun" {
		t.Fatalf("unexpected bodies: %d, first %q", len(snap.Bodies), snap.Bodies[0].Name)
	}
}

func TestRunSeedIsDeterministic(t *testing.T) {
	args := []string{"--seed", "99", "--log-level", "error", "run", "--frames", "3", "--format", "json"}
	first, err := execute(t, args...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := execute(t, args...)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if first != second {
		t.Fatalf("same seed produced different output")
	}
}

func TestRunTableOutput(t *testing.T) {
	out, err := execute(t, "--seed", "1", "--log-level", "error", "run", "--frames", "1", "--preset", "0")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Year 0, Day 0", "BODY", "Earth", "Moon", "planet"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	if _, err := execute(t, "run", "--frames", "0"); err == nil {
		t.Fatalf("expected error for zero frames")
	}
	if _, err := execute(t, "run", "--frames", "1", "--format", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := execute(t, "run", "--frames", "1", "--preset", "42"); err == nil {
		t.Fatalf("expected error for out of range preset")
	}
}

func TestCatalogueFilesAndFallback(t *testing.T) {
	planets, err := filepath.Abs(filepath.Join("..", "..", "data", "planets.json"))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	moons, err := filepath.Abs(filepath.Join("..", "..", "data", "moons.json"))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	out, err := execute(t, "--log-level", "error", "--planets", planets, "--moons", moons, "describe", "Titan")
	if err != nil {
		t.Fatalf("describe Titan: %v", err)
	}
	if !strings.Contains(out, "Orbits:   Saturn") {
		t.Fatalf("output = %q", out)
	}

	// An unreadable catalogue falls back to the built-in bodies.
	out, err = execute(t, "--log-level", "error", "--planets", "missing.json", "describe", "Earth")
	if err != nil {
		t.Fatalf("describe with missing catalogue: %v", err)
	}
	if !strings.Contains(out, "Distance: 1.00 AU") {
		t.Fatalf("output = %q", out)
	}
}

func TestHeadlessConfigRunsWithoutListeners(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "headless.yaml")
	doc := []byte("http:\n  addr: \"\"\ngrpc:\n  addr: \"\"\nlog:\n  level: error\n")
	if err := os.WriteFile(cfgPath, doc, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "--config", cfgPath, "run", "--frames", "1", "--format", "json")
	if err != nil {
		t.Fatalf("run with listeners disabled: %v\n%s", err, out)
	}
	if _, err := execute(t, "--config", cfgPath, "describe", "Mars"); err != nil {
		t.Fatalf("describe with listeners disabled: %v", err)
	}
	if _, err := execute(t, "--config", cfgPath, "serve"); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("serve without listeners error = %v, want ErrInvalid", err)
	}
}

func TestInvalidCatalogueFallsBack(t *testing.T) {
	planets := filepath.Join(t.TempDir(), "planets.json")
	// Decodes, but a zero period fails resolution.
	doc := []byte(`[{"name": "Earth", "radius": 6.371e6, "semiMajorAxis": 1.496e11}]`)
	if err := os.WriteFile(planets, doc, 0o600); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	out, err := execute(t, "--log-level", "error", "--planets", planets, "describe", "Neptune")
	if err != nil {
		t.Fatalf("describe with invalid catalogue: %v", err)
	}
	if !strings.Contains(out, "Name:     Neptune") {
		t.Fatalf("output = %q, want built-in Neptune", out)
	}
}

func TestDescribe(t *testing.T) {
	out, err := execute(t, "--log-level", "error", "describe", "Earth")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	for _, want := range []string{"Name:     Earth", "Kind:     planet", "Distance: 1.00 AU", "Period:   1.00 years"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--log-level", "error", "describe", "Moon", "--json")
	if err != nil {
		t.Fatalf("describe --json: %v", err)
	}
	var info core.BodyInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Parent != "Earth" || info.Period != "27.3 days" {
		t.Fatalf("Describe(Moon) = %+v", info)
	}

	if _, err := execute(t, "describe", "Vulcan"); !errors.Is(err, kb.ErrBodyNotFound) {
		t.Fatalf("describe Vulcan error = %v, want ErrBodyNotFound", err)
	}
}
