// Package config loads orrery settings from defaults, an optional YAML file,
// ORRERY_* environment variables and bound command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/timectrl"
)

// EnvPrefix is prepended to every environment override, e.g.
// ORRERY_HTTP_ADDR.
const EnvPrefix = "ORRERY"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved process configuration.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	FrameInterval time.Duration
	FrameMode     timectrl.Mode
	RatePreset    int

	PlanetsFile string
	MoonsFile   string
	// Seed drives the initial mean anomalies. Zero picks a time-based seed.
	Seed  uint64
	Epoch time.Time
	Scale core.Scale

	ControlRPS      float64
	ControlBurst    int
	StreamsPerIP    int
	StreamQueueSize int

	Log     logging.Config
	Tracing observability.TracingConfig
}

// New returns a viper instance carrying every default and the env binding.
func New() *viper.Viper {
	v := viper.New()
	s := core.DefaultScale()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("frame.interval", time.Second/60)
	v.SetDefault("frame.mode", timectrl.RealTime.String())
	v.SetDefault("time.preset", timectrl.DefaultPresetIndex)
	v.SetDefault("catalog.planets", "")
	v.SetDefault("catalog.moons", "")
	v.SetDefault("catalog.seed", 0)
	v.SetDefault("epoch", "2000-01-01T12:00:00Z")
	v.SetDefault("scale.distance", s.Distance)
	v.SetDefault("scale.size", s.Size)
	v.SetDefault("scale.sun_size", s.SunSize)
	v.SetDefault("scale.moon_boost", s.MoonDistanceBoost)
	v.SetDefault("scale.min_planet_radius", s.MinPlanetRadius)
	v.SetDefault("scale.min_moon_radius", s.MinMoonRadius)
	v.SetDefault("limits.control_rps", 5.0)
	v.SetDefault("limits.control_burst", 10)
	v.SetDefault("limits.streams_per_ip", 4)
	v.SetDefault("limits.stream_queue", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	tc := observability.DefaultTracingConfig()
	v.SetDefault("tracing.enabled", tc.Enabled)
	v.SetDefault("tracing.exporter", tc.Exporter)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", tc.ServiceName)
	v.SetDefault("tracing.sample_ratio", tc.SampleRatio)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds command-line flags to configuration keys. Flags that were
// not set on the command line leave lower-precedence sources in effect.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("bind flag %q: no such flag", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// ReadFile merges a YAML config file. An empty path looks for orrery.yaml in
// the working directory and tolerates its absence.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName("orrery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// ValidateListeners checks the settings only the serving command needs.
func (c Config) ValidateListeners() error {
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return fmt.Errorf("%w: at least one of http.addr and grpc.addr is required", ErrInvalid)
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	mode, err := timectrl.ParseMode(strings.ToLower(v.GetString("frame.mode")))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	epoch, err := time.Parse(time.RFC3339, v.GetString("epoch"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: epoch: %v", ErrInvalid, err)
	}

	cfg := Config{
		HTTPAddr:      v.GetString("http.addr"),
		GRPCAddr:      v.GetString("grpc.addr"),
		FrameInterval: v.GetDuration("frame.interval"),
		FrameMode:     mode,
		RatePreset:    v.GetInt("time.preset"),
		PlanetsFile:   v.GetString("catalog.planets"),
		MoonsFile:     v.GetString("catalog.moons"),
		Seed:          v.GetUint64("catalog.seed"),
		Epoch:         epoch.UTC(),
		Scale: core.Scale{
			Distance:          v.GetFloat64("scale.distance"),
			Size:              v.GetFloat64("scale.size"),
			SunSize:           v.GetFloat64("scale.sun_size"),
			MoonDistanceBoost: v.GetFloat64("scale.moon_boost"),
			MinPlanetRadius:   v.GetFloat64("scale.min_planet_radius"),
			MinMoonRadius:     v.GetFloat64("scale.min_moon_radius"),
		},
		ControlRPS:      v.GetFloat64("limits.control_rps"),
		ControlBurst:    v.GetInt("limits.control_burst"),
		StreamsPerIP:    v.GetInt("limits.streams_per_ip"),
		StreamQueueSize: v.GetInt("limits.stream_queue"),
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Tracing: observability.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: v.GetFloat64("tracing.sample_ratio"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that the loaders cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("frame.interval %v must be positive", c.FrameInterval))
	}
	if c.RatePreset < 0 || c.RatePreset >= len(timectrl.DefaultPresets) {
		errs = append(errs, fmt.Errorf("time.preset %d outside [0, %d)", c.RatePreset, len(timectrl.DefaultPresets)))
	}
	if c.MoonsFile != "" && c.PlanetsFile == "" {
		errs = append(errs, errors.New("catalog.moons requires catalog.planets"))
	}
	for name, val := range map[string]float64{
		"scale.distance":   c.Scale.Distance,
		"scale.size":       c.Scale.Size,
		"scale.sun_size":   c.Scale.SunSize,
		"scale.moon_boost": c.Scale.MoonDistanceBoost,
	} {
		if val <= 0 {
			errs = append(errs, fmt.Errorf("%s %v must be positive", name, val))
		}
	}
	if c.ControlRPS <= 0 || c.ControlBurst < 1 {
		errs = append(errs, fmt.Errorf("limits.control_rps %v and limits.control_burst %d must be positive", c.ControlRPS, c.ControlBurst))
	}
	if c.StreamsPerIP < 1 || c.StreamQueueSize < 1 {
		errs = append(errs, fmt.Errorf("limits.streams_per_ip %d and limits.stream_queue %d must be positive", c.StreamsPerIP, c.StreamQueueSize))
	}
	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" && f != "" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio %v outside [0, 1]", c.Tracing.SampleRatio))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
