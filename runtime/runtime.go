package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
	"github.com/wippyai/physx-runtime/resource"
)

// Runtime owns the lifecycle of one native physics module: which build is
// loaded, whether it is ready, and the chain of native singletons it hands
// out. It is safe for concurrent use.
type Runtime struct {
	loader     physxruntime.Loader
	prober     physxruntime.Prober
	module     physxruntime.Module
	lastErr    error
	pending    *pending
	chain      *resource.Chain
	listeners  []Listener
	observers  []resource.Observer
	tolerances physxruntime.Tolerances
	mu         sync.Mutex
	cycle      uuid.UUID
	mode       physxruntime.Mode
	resolved   physxruntime.Mode
	state      State
	extensions bool
}

// New creates an uninitialized Runtime that loads module builds through loader.
func New(loader physxruntime.Loader, opts ...Option) *Runtime {
	r := &Runtime{
		loader:     loader,
		tolerances: physxruntime.DefaultTolerances(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prober == nil {
		if p, ok := loader.(physxruntime.Prober); ok {
			r.prober = p
		}
	}
	return r
}

// Initialize loads the module and builds the native resource chain.
//
// When the runtime is already ready it returns nil at once. When a load is
// in flight it waits for that load and returns its result; every caller of
// one cycle sees the same outcome. ctx bounds only this caller's wait: a
// canceled caller gets ctx.Err() while the load keeps running.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		return nil
	case StateUninitialized:
		if err := claim(r); err != nil {
			r.mu.Unlock()
			return err
		}
		r.pending = &pending{done: make(chan struct{})}
		r.cycle = uuid.New()
		r.setState(StateInitializing)
		go r.load(context.WithoutCancel(ctx), r.pending, r.cycle)
	}
	p := r.pending
	r.mu.Unlock()

	atomic.AddInt32(&p.waiters, 1)
	defer atomic.AddInt32(&p.waiters, -1)

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy releases the resource chain in reverse construction order, closes
// the module and returns the runtime to StateUninitialized.
//
// Destroy on an uninitialized runtime is a no-op. While a load is in flight
// Destroy waits for it to settle and then tears down whatever it produced;
// ctx bounds that wait. Release failures are reported, but every handle is
// dropped regardless and the runtime can be initialized again.
func (r *Runtime) Destroy(ctx context.Context) error {
	for {
		r.mu.Lock()
		switch r.state {
		case StateUninitialized:
			r.mu.Unlock()
			return nil
		case StateInitializing:
			p, cycle := r.pending, r.cycle
			r.mu.Unlock()
			Logger().Debug("destroy waiting for pending initialization",
				zap.String("cycle", cycle.String()))
			select {
			case <-p.done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.teardown(context.WithoutCancel(ctx))
		r.mu.Unlock()
		return err
	}
}

// Module returns the live module. It fails unless the runtime is ready.
// Callers must not keep the module across Destroy.
func (r *Runtime) Module() (physxruntime.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReady {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "physics module")
	}
	return r.module, nil
}

// Handle returns the native handle of a chain stage. It fails unless the
// runtime is ready.
func (r *Runtime) Handle(stage resource.Stage) (physxruntime.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReady {
		return 0, errors.NotInitialized(errors.PhaseRuntime, stage.String())
	}
	h, ok := r.chain.Handle(stage)
	if !ok {
		return 0, errors.NotFound(errors.PhaseRuntime, "resource stage", stage.String())
	}
	return h, nil
}

// Physics returns the physics-world handle.
func (r *Runtime) Physics() (physxruntime.Handle, error) {
	return r.Handle(resource.StagePhysics)
}

// Foundation returns the foundation handle.
func (r *Runtime) Foundation() (physxruntime.Handle, error) {
	return r.Handle(resource.StageFoundation)
}

// State returns the current initialization state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Ready reports whether the runtime is in StateReady.
func (r *Runtime) Ready() bool {
	return r.State() == StateReady
}

// Mode returns the configured mode, which may be ModeAuto.
func (r *Runtime) Mode() physxruntime.Mode {
	return r.mode
}

// ResolvedMode returns the mode of the loaded build; ok is false unless ready.
func (r *Runtime) ResolvedMode() (physxruntime.Mode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved, r.state == StateReady
}

// ResourceCount returns the number of live native resources.
func (r *Runtime) ResourceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chain == nil {
		return 0
	}
	return r.chain.Len()
}

// Status returns a snapshot for diagnostics.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		State: r.state.String(),
		Mode:  r.mode.String(),
	}
	if r.state != StateUninitialized {
		st.Cycle = r.cycle.String()
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	if r.pending != nil {
		st.Waiters = int(atomic.LoadInt32(&r.pending.waiters))
	}
	if r.state == StateReady {
		st.ResolvedMode = r.resolved.String()
		st.Version = r.module.Version()
		st.Resources = r.chain.Len()
		for _, s := range r.chain.Stages() {
			st.Stages = append(st.Stages, s.String())
		}
	}
	return st
}

// load runs one initialization cycle and publishes its outcome to p.
func (r *Runtime) load(ctx context.Context, p *pending, cycle uuid.UUID) {
	log := Logger().With(zap.String("cycle", cycle.String()))
	start := time.Now()

	mode := r.resolveMode()
	log.Debug("loading physics module", zap.Stringer("mode", mode))

	module, chain, err := r.bootstrap(ctx, mode)
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		log.Warn("physics initialization failed", zap.Stringer("mode", mode), zap.Error(err))
		r.lastErr = err
		unclaim(r)
		r.setState(StateUninitialized)
	} else {
		log.Info("physx loaded",
			zap.Stringer("mode", mode),
			zap.Uint32("version", module.Version()),
			zap.Int("resources", chain.Len()),
			zap.Duration("elapsed", elapsed))
		r.module = module
		r.chain = chain
		r.resolved = mode
		r.lastErr = nil
		r.setState(StateReady)
	}

	for _, l := range r.listeners {
		l.OnLoad(mode, elapsed, err)
	}

	r.pending = nil
	p.err = err
	close(p.done)
}

// resolveMode applies capability detection when the configured mode is auto.
func (r *Runtime) resolveMode() physxruntime.Mode {
	if r.mode != physxruntime.ModeAuto {
		return r.mode
	}
	if probe(r.prober) {
		return physxruntime.ModeAccelerated
	}
	return physxruntime.ModeInterpreted
}

// probe treats any fault inside the prober as "unsupported".
func probe(p physxruntime.Prober) (supported bool) {
	if p == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Debug("capability probe panicked", zap.Any("panic", rec))
			supported = false
		}
	}()
	return p.AcceleratedSupported()
}

func (r *Runtime) bootstrap(ctx context.Context, mode physxruntime.Mode) (physxruntime.Module, *resource.Chain, error) {
	artifact, err := r.loader.Load(ctx, mode)
	if err != nil {
		return nil, nil, loadError(mode, err)
	}
	if artifact == nil {
		return nil, nil, errors.ArtifactLoad(mode.String(), nil)
	}

	module, err := artifact.Instantiate(ctx)
	if err != nil {
		return nil, nil, entryError(err)
	}
	if module == nil {
		return nil, nil, errors.ModuleEntry("entry point returned no module", nil)
	}

	chain, err := r.construct(ctx, module)
	if err != nil {
		if cerr := module.Close(ctx); cerr != nil {
			Logger().Warn("close module after failed construction", zap.Error(cerr))
		}
		return nil, nil, err
	}
	return module, chain, nil
}

// construct builds the native resource chain. On failure every stage built
// so far is released before the error is returned.
func (r *Runtime) construct(ctx context.Context, module physxruntime.Module) (*resource.Chain, error) {
	chain := resource.NewChain(r.observers...)
	version := module.Version()

	handle := func(s resource.Stage) physxruntime.Handle {
		h, _ := chain.Handle(s)
		return h
	}

	steps := []struct {
		create func() (physxruntime.Handle, error)
		stage  resource.Stage
	}{
		{stage: resource.StageAllocator, create: func() (physxruntime.Handle, error) {
			return module.CreateAllocator(ctx)
		}},
		{stage: resource.StageErrorCallback, create: func() (physxruntime.Handle, error) {
			return module.CreateErrorCallback(ctx)
		}},
		{stage: resource.StageFoundation, create: func() (physxruntime.Handle, error) {
			return module.CreateFoundation(ctx, version,
				handle(resource.StageAllocator), handle(resource.StageErrorCallback))
		}},
		{stage: resource.StagePhysics, create: func() (physxruntime.Handle, error) {
			return module.CreatePhysics(ctx, version, handle(resource.StageFoundation), r.tolerances)
		}},
	}

	fail := func(stage resource.Stage, cause error) error {
		if rerr := chain.Release(ctx); rerr != nil {
			Logger().Warn("release partial resource chain", zap.Error(rerr))
		}
		return errors.ResourceConstruction(stage.String(), cause)
	}

	for _, step := range steps {
		h, err := step.create()
		if err != nil {
			return nil, fail(step.stage, err)
		}
		if h == 0 {
			return nil, fail(step.stage, errors.InvalidData(errors.PhaseConstruct, "native constructor returned a null handle"))
		}
		if err := chain.Push(step.stage, h, releaser(module, h)); err != nil {
			if rerr := module.Release(ctx, h); rerr != nil {
				Logger().Warn("release orphaned handle", zap.Error(rerr))
			}
			return nil, fail(step.stage, err)
		}
	}

	if r.extensions {
		physics := handle(resource.StagePhysics)
		if err := module.InitExtensions(ctx, physics); err != nil {
			return nil, fail(resource.StageExtensions, err)
		}
		// Extensions have no handle of their own; the stage is keyed by the
		// physics handle they were opened against.
		if err := chain.Push(resource.StageExtensions, physics, module.CloseExtensions); err != nil {
			if cerr := module.CloseExtensions(ctx); cerr != nil {
				Logger().Warn("close orphaned extensions", zap.Error(cerr))
			}
			return nil, fail(resource.StageExtensions, err)
		}
	}

	return chain, nil
}

func releaser(module physxruntime.Module, h physxruntime.Handle) resource.ReleaseFunc {
	return func(ctx context.Context) error {
		return module.Release(ctx, h)
	}
}

// teardown must be called with r.mu held and the runtime ready.
func (r *Runtime) teardown(ctx context.Context) error {
	log := Logger().With(zap.String("cycle", r.cycle.String()))

	var err error
	if r.chain != nil {
		err = multierr.Append(err, r.chain.Release(ctx))
	}
	if r.module != nil {
		if cerr := r.module.Close(ctx); cerr != nil {
			err = multierr.Append(err, errors.Release("module", cerr))
		}
	}
	if err != nil {
		log.Warn("physics teardown reported errors", zap.Error(err))
	} else {
		log.Info("physx destroyed")
	}

	r.chain = nil
	r.module = nil
	unclaim(r)
	r.setState(StateUninitialized)
	return err
}

func (r *Runtime) setState(s State) {
	from := r.state
	r.state = s
	for _, l := range r.listeners {
		l.OnStateChange(from, s)
	}
}

func loadError(mode physxruntime.Mode, err error) error {
	switch errors.KindOf(err) {
	case errors.KindUnsupported, errors.KindArtifactLoad:
		return err
	}
	return errors.ArtifactLoad(mode.String(), err)
}

func entryError(err error) error {
	if errors.KindOf(err) == errors.KindModuleEntry {
		return err
	}
	return errors.ModuleEntry("instantiate module", err)
}
