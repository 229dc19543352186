package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimulationCollector exposes frame-loop and time-controller metrics. It
// satisfies core.FrameRecorder.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	FramesTotal       prometheus.Counter
	FrameDuration     prometheus.Histogram
	SimulationTime    prometheus.Gauge
	SimulationRate    prometheus.Gauge
	Paused            prometheus.Gauge
	Bodies            prometheus.Gauge
	StreamConnections prometheus.Gauge
}

// NewSimulationCollector registers simulation metrics against the provided
// registerer.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	frames, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_frames_total",
		Help: "Number of propagated frames.",
	}), "orrery_frames_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_frame_duration_seconds",
		Help:    "Wall time spent propagating every body for one frame.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "orrery_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	simTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_simulation_time_seconds",
		Help: "Simulation seconds elapsed since the epoch.",
	}), "orrery_simulation_time_seconds")
	if err != nil {
		return nil, err
	}

	rate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_simulation_rate_days_per_second",
		Help: "Selected time acceleration in simulated days per real second.",
	}), "orrery_simulation_rate_days_per_second")
	if err != nil {
		return nil, err
	}

	paused, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_simulation_paused",
		Help: "1 while the simulation clock is paused.",
	}), "orrery_simulation_paused")
	if err != nil {
		return nil, err
	}

	bodies, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_bodies",
		Help: "Number of bodies propagated per frame.",
	}), "orrery_bodies")
	if err != nil {
		return nil, err
	}

	streams, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orrery_stream_connections",
		Help: "Open snapshot stream connections.",
	}), "orrery_stream_connections")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:          gathererFor(reg),
		FramesTotal:       frames,
		FrameDuration:     duration,
		SimulationTime:    simTime,
		SimulationRate:    rate,
		Paused:            paused,
		Bodies:            bodies,
		StreamConnections: streams,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes the collector's registry over HTTP.
func (c *SimulationCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveFrame records one propagated frame.
func (c *SimulationCollector) ObserveFrame(d time.Duration, simTime float64, bodies int) {
	if c == nil {
		return
	}
	if c.FramesTotal != nil {
		c.FramesTotal.Inc()
	}
	if c.FrameDuration != nil {
		c.FrameDuration.Observe(d.Seconds())
	}
	if c.SimulationTime != nil {
		c.SimulationTime.Set(simTime)
	}
	if c.Bodies != nil {
		c.Bodies.Set(float64(bodies))
	}
}

// SetRate updates the rate and pause gauges.
func (c *SimulationCollector) SetRate(daysPerSecond float64, paused bool) {
	if c == nil {
		return
	}
	if c.SimulationRate != nil {
		c.SimulationRate.Set(daysPerSecond)
	}
	if c.Paused != nil {
		v := 0.0
		if paused {
			v = 1
		}
		c.Paused.Set(v)
	}
}

// StreamOpened increments the open stream gauge.
func (c *SimulationCollector) StreamOpened() {
	if c == nil || c.StreamConnections == nil {
		return
	}
	c.StreamConnections.Inc()
}

// StreamClosed decrements the open stream gauge.
func (c *SimulationCollector) StreamClosed() {
	if c == nil || c.StreamConnections == nil {
		return
	}
	c.StreamConnections.Dec()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
