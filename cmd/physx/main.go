package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/artifact"
	"github.com/wippyai/physx-runtime/config"
	"github.com/wippyai/physx-runtime/engine"
	"github.com/wippyai/physx-runtime/runtime"
)

// app carries what every command needs after flags are parsed.
type app struct {
	log        *zap.Logger
	cfg        config.Config
	configPath string
	mode       string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "physx",
		Short:         "bootstrap and manage the wasm physics runtime",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path (yaml, json or toml)")
	root.PersistentFlags().StringVar(&a.mode, "mode", "", "runtime mode: auto, accelerated or interpreted")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newProbeCmd(a),
		newFetchCmd(a),
		newInitCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads configuration, applies flag overrides and installs the logger.
func (a *app) setup() error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if a.mode != "" {
		cfg.Mode = a.mode
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	runtime.SetLogger(log.Named("runtime"))
	engine.SetLogger(log.Named("engine"))
	artifact.SetLogger(log.Named("artifact"))
	return nil
}

func newLogger(c config.Log) (*zap.Logger, error) {
	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	lvl, err := (config.Config{Log: c}).LogLevel()
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func (a *app) newFetcher() *artifact.Fetcher {
	var opts []artifact.Option
	if a.cfg.Cache.ArtifactDir != "" {
		opts = append(opts, artifact.WithCacheDir(a.cfg.Cache.ArtifactDir))
	}
	return artifact.NewFetcher(a.cfg.Artifacts, opts...)
}

func (a *app) newEngine(ctx context.Context, fetcher engine.Fetcher) (*engine.Engine, error) {
	return engine.New(ctx, fetcher, &engine.Config{
		CompilationCacheDir: a.cfg.Cache.CompilationDir,
		MemoryLimitPages:    a.cfg.Engine.MemoryLimitPages,
	})
}

func (a *app) runtimeOptions() ([]runtime.Option, error) {
	mode, err := a.cfg.RuntimeMode()
	if err != nil {
		return nil, err
	}
	return []runtime.Option{
		runtime.WithMode(mode),
		runtime.WithTolerances(a.cfg.RuntimeTolerances()),
		runtime.WithExtensions(a.cfg.Extensions),
	}, nil
}

func parseModes(args []string) ([]physxruntime.Mode, error) {
	if len(args) == 0 {
		return []physxruntime.Mode{physxruntime.ModeAccelerated, physxruntime.ModeInterpreted}, nil
	}
	modes := make([]physxruntime.Mode, 0, len(args))
	for _, arg := range args {
		m, err := physxruntime.ParseMode(arg)
		if err != nil {
			return nil, err
		}
		if m == physxruntime.ModeAuto {
			return nil, fmt.Errorf("fetch needs a concrete mode, got %q", arg)
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// concreteMode resolves auto the same way the runtime does.
func concreteMode(mode physxruntime.Mode, acceleratedSupported bool) (physxruntime.Mode, bool) {
	switch mode {
	case physxruntime.ModeAccelerated, physxruntime.ModeInterpreted:
		return mode, true
	case physxruntime.ModeAuto:
		if acceleratedSupported {
			return physxruntime.ModeAccelerated, true
		}
		return physxruntime.ModeInterpreted, true
	}
	return mode, false
}
