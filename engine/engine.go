package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
)

// Fetcher supplies the raw bytes of a module build.
type Fetcher interface {
	Fetch(ctx context.Context, mode physxruntime.Mode) ([]byte, error)
}

// Config holds configuration for engine creation
type Config struct {
	// HostModules instantiates extra host modules the artifact imports,
	// beyond WASI and physx_host. It runs once per load, against the fresh
	// runtime that will host the artifact.
	HostModules func(ctx context.Context, r wazero.Runtime) error

	// CompilationCacheDir persists compiled code across processes.
	// Empty means an in-memory cache shared by this engine's loads.
	CompilationCacheDir string

	// MemoryLimitPages caps each module's memory in 64KB pages.
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Engine loads module builds into wazero. It implements physxruntime.Loader
// and physxruntime.Prober. Each Load gets its own wazero runtime, which the
// resulting Module closes.
type Engine struct {
	fetcher   Fetcher
	cache     wazero.CompilationCache
	probe     func(context.Context) bool
	cfg       Config
	reports   atomic.Int64
	probeOnce sync.Once
	supported bool
}

// New creates an engine that fetches builds through fetcher.
func New(ctx context.Context, fetcher Fetcher, cfg *Config) (*Engine, error) {
	e := &Engine{
		fetcher: fetcher,
		probe:   Probe,
	}
	if cfg != nil {
		e.cfg = *cfg
	}

	if e.cfg.CompilationCacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(e.cfg.CompilationCacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "open compilation cache")
		}
		e.cache = cache
	} else {
		e.cache = wazero.NewCompilationCache()
	}
	return e, nil
}

// AcceleratedSupported runs the capability probe once and caches the result.
func (e *Engine) AcceleratedSupported() bool {
	e.probeOnce.Do(func() {
		e.supported = e.probe(context.Background())
		Logger().Debug("capability probe", zap.Bool("accelerated", e.supported))
	})
	return e.supported
}

// ErrorReports returns how many reports the native error callback has made.
func (e *Engine) ErrorReports() int64 {
	return e.reports.Load()
}

// Load fetches and compiles the build for mode.
func (e *Engine) Load(ctx context.Context, mode physxruntime.Mode) (physxruntime.Artifact, error) {
	switch mode {
	case physxruntime.ModeAccelerated:
		if !e.AcceleratedSupported() {
			err := errors.Unsupported(errors.PhaseProbe, "compiler backend is not available on this host")
			err.Mode = mode.String()
			return nil, err
		}
	case physxruntime.ModeInterpreted:
	default:
		return nil, errors.InvalidInput(errors.PhaseLoad, "load requires a resolved mode, got "+mode.String())
	}

	data, err := e.fetcher.Fetch(ctx, mode)
	if err != nil {
		return nil, errors.ArtifactLoad(mode.String(), err)
	}

	r := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig(mode))
	compiled, err := r.CompileModule(ctx, data)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.ArtifactLoad(mode.String(), err)
	}

	Logger().Debug("compiled module artifact",
		zap.Stringer("mode", mode),
		zap.Int("bytes", len(data)))

	return &artifact{
		engine:   e,
		runtime:  r,
		compiled: compiled,
		mode:     mode,
	}, nil
}

// Close releases the compilation cache.
// Modules created by this engine stay valid.
func (e *Engine) Close(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close(ctx)
}

func (e *Engine) runtimeConfig(mode physxruntime.Mode) wazero.RuntimeConfig {
	var cfg wazero.RuntimeConfig
	if mode == physxruntime.ModeAccelerated {
		cfg = wazero.NewRuntimeConfigCompiler()
	} else {
		cfg = wazero.NewRuntimeConfigInterpreter()
	}
	if e.cache != nil {
		cfg = cfg.WithCompilationCache(e.cache)
	}
	if e.cfg.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	return cfg
}

// artifact is a compiled build waiting for its entry point to run.
type artifact struct {
	engine   *Engine
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	mode     physxruntime.Mode
}

// Instantiate wires the artifact's imports, instantiates it, binds the
// export ABI and runs px_init. On failure the artifact's runtime is closed.
func (a *artifact) Instantiate(ctx context.Context) (physxruntime.Module, error) {
	m, err := a.instantiate(ctx)
	if err != nil {
		_ = a.runtime.Close(ctx)
		return nil, err
	}
	return m, nil
}

func (a *artifact) instantiate(ctx context.Context) (*wasmModule, error) {
	if err := a.engine.instantiateImports(ctx, a.runtime, a.compiled); err != nil {
		return nil, errors.ModuleEntry("instantiate host imports", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName(moduleName).
		WithStartFunctions("_initialize")
	mod, err := a.runtime.InstantiateModule(ctx, a.compiled, cfg)
	if err != nil {
		return nil, errors.ModuleEntry("instantiate module", err)
	}

	m, err := bind(a.runtime, mod)
	if err != nil {
		return nil, errors.ModuleEntry("bind module exports", err)
	}
	if err := m.start(ctx); err != nil {
		return nil, err
	}

	Logger().Debug("module started",
		zap.Stringer("mode", a.mode),
		zap.Uint32("version", m.Version()))
	return m, nil
}
