package timectrl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// SecondsPerDay converts rate presets (days per real second) to simulation
// seconds per real second.
const SecondsPerDay = 86400.0

// DaysPerYear is the Julian year used for elapsed-time display.
const DaysPerYear = 365.25

// DefaultPresets are the selectable rates in simulated days per real second.
var DefaultPresets = []float64{0.1, 0.5, 1, 5, 10, 30, 100, 365}

// DefaultPresetIndex selects 1 day per second.
const DefaultPresetIndex = 2

var (
	// ErrPresetOutOfRange is returned by SetPreset for an unknown index.
	ErrPresetOutOfRange = errors.New("rate preset out of range")
	// ErrUnknownAction is returned by Apply for an unrecognised control action.
	ErrUnknownAction = errors.New("unknown time control action")
)

// SimulationClock is the single scalar simulation time in seconds. It may go
// negative if a caller ever feeds negative deltas.
type SimulationClock struct {
	seconds float64
}

// Advance moves the clock by d simulation seconds.
func (c *SimulationClock) Advance(d float64) { c.seconds += d }

// Reset returns the clock to zero.
func (c *SimulationClock) Reset() { c.seconds = 0 }

// Seconds returns the accumulated simulation time.
func (c *SimulationClock) Seconds() float64 { return c.seconds }

// Target is what the controller drives once per frame. The engine's Tick
// advances its SimulationClock and recomputes positions; Reset zeroes it.
type Target interface {
	Tick(simDelta float64)
	Reset()
}

// State is a snapshot of the controller for display and APIs.
type State struct {
	Paused        bool    `json:"paused"`
	PresetIndex   int     `json:"preset_index"`
	DaysPerSecond float64 `json:"days_per_second"`
	Rate          float64 `json:"rate"` // simulation seconds per real second
	Label         string  `json:"label"`
}

// Controller owns the rate and pause state. It converts real frame deltas
// into simulation deltas and knows nothing about orbits.
type Controller struct {
	mu sync.RWMutex

	presets []float64
	index   int
	paused  bool

	onReset []func()
}

// NewController constructs a controller with the given presets, starting at
// DefaultPresetIndex (or the middle preset when the list is shorter).
func NewController(presets []float64) *Controller {
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	idx := DefaultPresetIndex
	if idx >= len(presets) {
		idx = len(presets) / 2
	}
	return &Controller{
		presets: append([]float64(nil), presets...),
		index:   idx,
	}
}

// OnReset registers a hook run by Reset, outside the controller lock.
func (c *Controller) OnReset(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReset = append(c.onReset, fn)
}

// Advance returns the simulation delta for a real delta: realDelta * rate,
// or 0 while paused.
func (c *Controller) Advance(realDelta time.Duration) float64 {
	d, _ := c.advance(realDelta)
	return d
}

// advance reads the rate and pause flag under one lock.
func (c *Controller) advance(realDelta time.Duration) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return 0, true
	}
	return realDelta.Seconds() * c.presets[c.index] * SecondsPerDay, false
}

// Pause stops simulation time from advancing.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume lets simulation time advance again.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// TogglePause flips the pause state and returns the new value.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	return c.paused
}

// SetPreset selects a rate preset by index.
func (c *Controller) SetPreset(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.presets) {
		return fmt.Errorf("%w: %d (have %d presets)", ErrPresetOutOfRange, i, len(c.presets))
	}
	c.index = i
	return nil
}

// Faster moves to the next preset; it is a no-op at the fastest one.
func (c *Controller) Faster() {
	c.mu.Lock()
	if c.index < len(c.presets)-1 {
		c.index++
	}
	c.mu.Unlock()
}

// Slower moves to the previous preset; it is a no-op at the slowest one.
func (c *Controller) Slower() {
	c.mu.Lock()
	if c.index > 0 {
		c.index--
	}
	c.mu.Unlock()
}

// Reset restores the default rate, unpauses and runs the reset hooks, which
// zero the simulation clock.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.index = DefaultPresetIndex
	if c.index >= len(c.presets) {
		c.index = len(c.presets) / 2
	}
	c.paused = false
	hooks := append([]func(){}, c.onReset...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Apply performs a named control action: pause, resume, toggle, faster,
// slower or reset.
func (c *Controller) Apply(action string) error {
	switch action {
	case "pause":
		c.Pause()
	case "resume", "play":
		c.Resume()
	case "toggle":
		c.TogglePause()
	case "faster":
		c.Faster()
	case "slower":
		c.Slower()
	case "reset":
		c.Reset()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	days := c.presets[c.index]
	return State{
		Paused:        c.paused,
		PresetIndex:   c.index,
		DaysPerSecond: days,
		Rate:          days * SecondsPerDay,
		Label:         RateLabel(days),
	}
}

// RateLabel renders a days-per-second rate for display.
func RateLabel(days float64) string {
	switch {
	case days < 1:
		return fmt.Sprintf("%gx (%.1f hours/sec)", days, days*24)
	case days == 1:
		return "1x (1 day/sec)"
	case days < 365:
		return fmt.Sprintf("%gx (%g days/sec)", days, days)
	default:
		return fmt.Sprintf("%gx (%.1f years/sec)", days, days/DaysPerYear)
	}
}

// FormatElapsed renders simulation seconds as "Year N, Day D".
func FormatElapsed(seconds float64) string {
	totalDays := seconds / SecondsPerDay
	years := math.Floor(totalDays / DaysPerYear)
	days := math.Floor(math.Mod(totalDays, DaysPerYear))
	return fmt.Sprintf("Year %d, Day %d", int64(years), int64(days))
}

// Mode describes how the FramePump measures real time between frames.
type Mode int

const (
	// RealTime measures wall-clock time between frames.
	RealTime Mode = iota
	// Accelerated treats every frame as exactly one Interval of real time and
	// runs frames back to back without waiting.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// ParseMode maps "realtime" or "accelerated" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "realtime", "real-time":
		return RealTime, nil
	case "accelerated":
		return Accelerated, nil
	}
	return RealTime, fmt.Errorf("unknown frame mode %q", s)
}

// Frame describes one pumped frame.
type Frame struct {
	Number    uint64
	RealDelta time.Duration
	SimDelta  float64
	Paused    bool // the target was not ticked
}

// FramePump is the per-frame scheduler: each frame it measures real time,
// asks the controller for the simulation delta and ticks the target.
type FramePump struct {
	Controller *Controller
	Target     Target
	Interval   time.Duration
	Mode       Mode

	// now is swappable for tests.
	now func() time.Time

	mu        sync.Mutex
	listeners []func(Frame)
}

// NewFramePump wires a controller to a target. The controller's reset hook
// is pointed at the target.
func NewFramePump(ctrl *Controller, target Target, interval time.Duration, mode Mode) *FramePump {
	if interval <= 0 {
		interval = time.Second / 60
	}
	ctrl.OnReset(target.Reset)
	return &FramePump{
		Controller: ctrl,
		Target:     target,
		Interval:   interval,
		Mode:       mode,
		now:        time.Now,
	}
}

// AddListener registers a callback invoked after every frame.
func (p *FramePump) AddListener(fn func(Frame)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Step runs one frame with an explicit real delta.
func (p *FramePump) Step(n uint64, realDelta time.Duration) Frame {
	simDelta, paused := p.Controller.advance(realDelta)
	if !paused {
		p.Target.Tick(simDelta)
	}
	f := Frame{Number: n, RealDelta: realDelta, SimDelta: simDelta, Paused: paused}

	p.mu.Lock()
	listeners := append([]func(Frame){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(f)
	}
	return f
}

// Start runs frames in a separate goroutine until ctx is cancelled or, when
// duration > 0, until that much real (RealTime) or nominal (Accelerated)
// time has been pumped. The returned channel is closed when it stops.
func (p *FramePump) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if p.Mode == RealTime {
			ticker = time.NewTicker(p.Interval)
			defer ticker.Stop()
		}

		last := p.now()
		elapsed := time.Duration(0)
		for n := uint64(1); ; n++ {
			if duration > 0 && elapsed >= duration {
				return
			}
			if ctx.Err() != nil {
				return
			}

			var realDelta time.Duration
			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				now := p.now()
				realDelta = now.Sub(last)
				last = now
			} else {
				select {
				case <-ctx.Done():
					return
				default:
				}
				realDelta = p.Interval
			}

			elapsed += realDelta
			p.Step(n, realDelta)
		}
	}()
	return done
}
