package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/config"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/timectrl"
)

// app carries state shared by the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "orrery",
		Short:         "Keplerian solar system simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./orrery.yaml if present)")
	pf.String("planets", "", "planet catalogue JSON (built-in set when empty)")
	pf.String("moons", "", "moon catalogue JSON")
	pf.Uint64("seed", 0, "seed for initial mean anomalies (0 = time based)")
	pf.String("epoch", "", "RFC 3339 instant of simulation time zero")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := config.BindFlags(a.v, cmd.Flags(), map[string]string{
			"planets":    "catalog.planets",
			"moons":      "catalog.moons",
			"seed":       "catalog.seed",
			"epoch":      "epoch",
			"log-level":  "log.level",
			"log-format": "log.format",
		}); err != nil {
			return err
		}
		return config.ReadFile(a.v, a.cfgFile)
	}

	root.AddCommand(newServeCmd(a), newRunCmd(a), newDescribeCmd(a))
	return root
}

func (a *app) load() (config.Config, logging.Logger, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return config.Config{}, nil, err
	}
	logCfg := cfg.Log
	logCfg.Output = os.Stderr
	return cfg, logging.New(logCfg), nil
}

// simulation is the wired core: registry, engine, controller and pump.
type simulation struct {
	store  *kb.KnowledgeBase
	engine *core.Engine
	ctrl   *timectrl.Controller
	pump   *timectrl.FramePump
}

// resolveBodies reads and resolves the configured catalogue files. A file
// that cannot be read, decoded or resolved falls back to the built-in set.
func resolveBodies(cfg config.Config, log logging.Logger) ([]core.ResolvedBody, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	opts := core.ResolveOptions{
		Scale: cfg.Scale,
		Rand:  rand.New(rand.NewPCG(seed, seed>>1)),
		Epoch: cfg.Epoch,
	}

	if cfg.PlanetsFile != "" {
		bodies, err := resolveFiles(cfg, opts)
		if err == nil {
			log.Info(context.Background(), "catalogue loaded",
				logging.String("planets_file", cfg.PlanetsFile),
				logging.Int("bodies", len(bodies)))
			return bodies, nil
		}
		log.Warn(context.Background(), "catalogue unusable, using built-in bodies",
			logging.String("planets_file", cfg.PlanetsFile), logging.Err(err))
	}

	bodies, err := core.DefaultCatalog().Resolve(opts)
	if err != nil {
		return nil, fmt.Errorf("resolve built-in catalogue: %w", err)
	}
	return bodies, nil
}

func resolveFiles(cfg config.Config, opts core.ResolveOptions) ([]core.ResolvedBody, error) {
	cat, err := core.LoadCatalogFiles(cfg.PlanetsFile, cfg.MoonsFile)
	if err != nil {
		return nil, err
	}
	return cat.Resolve(opts)
}

func buildSimulation(cfg config.Config, log logging.Logger, opts ...core.EngineOption) (*simulation, error) {
	bodies, err := resolveBodies(cfg, log)
	if err != nil {
		return nil, err
	}

	store := kb.NewKnowledgeBase()
	opts = append([]core.EngineOption{
		core.WithLogger(log),
		core.WithEpoch(cfg.Epoch),
		core.WithScale(cfg.Scale),
	}, opts...)
	engine, err := core.NewEngine(store, bodies, opts...)
	if err != nil {
		return nil, err
	}

	ctrl := timectrl.NewController(nil)
	if err := ctrl.SetPreset(cfg.RatePreset); err != nil {
		return nil, err
	}
	pump := timectrl.NewFramePump(ctrl, engine, cfg.FrameInterval, cfg.FrameMode)
	return &simulation{store: store, engine: engine, ctrl: ctrl, pump: pump}, nil
}
