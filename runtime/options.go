package runtime

import (
	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/resource"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithMode selects the module variant. The default is ModeAuto.
func WithMode(m physxruntime.Mode) Option {
	return func(r *Runtime) { r.mode = m }
}

// WithProber overrides capability detection for ModeAuto. By default the
// loader is used when it implements physxruntime.Prober; otherwise the
// accelerated build is assumed unsupported.
func WithProber(p physxruntime.Prober) Option {
	return func(r *Runtime) { r.prober = p }
}

// WithTolerances sets the scale passed to physics construction.
func WithTolerances(t physxruntime.Tolerances) Option {
	return func(r *Runtime) { r.tolerances = t }
}

// WithExtensions initializes the extensions library as a fifth chain stage.
func WithExtensions(enabled bool) Option {
	return func(r *Runtime) { r.extensions = enabled }
}

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(r *Runtime) { r.listeners = append(r.listeners, l) }
}

// WithObserver registers an observer on every resource chain the runtime builds.
func WithObserver(o resource.Observer) Option {
	return func(r *Runtime) { r.observers = append(r.observers, o) }
}
