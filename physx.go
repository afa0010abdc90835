package physxruntime

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects which native module build is loaded.
type Mode uint8

const (
	// ModeAuto probes the host and picks ModeAccelerated when supported,
	// ModeInterpreted otherwise.
	ModeAuto Mode = iota
	// ModeAccelerated loads the SIMD release build under the compiler backend.
	ModeAccelerated
	// ModeInterpreted loads the portable build under the interpreter backend.
	ModeInterpreted
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeAccelerated:
		return "accelerated"
	case ModeInterpreted:
		return "interpreted"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a config or flag value into a Mode.
// The empty string is treated as "auto".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "accelerated", "wasm", "webassembly":
		return ModeAccelerated, nil
	case "interpreted", "portable":
		return ModeInterpreted, nil
	default:
		return ModeAuto, fmt.Errorf("unknown runtime mode %q", s)
	}
}

// Handle is an opaque reference to a native object inside a loaded module.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Tolerances mirrors PxTolerancesScale: the characteristic length and speed
// the physics world is tuned for.
type Tolerances struct {
	Length float32
	Speed  float32
}

// DefaultTolerances returns the engine defaults (1 unit, 10 units/s).
func DefaultTolerances() Tolerances {
	return Tolerances{Length: 1, Speed: 10}
}

// Module is the narrow surface of a live native physics module.
// Implementations are not required to be safe for concurrent use; the
// runtime serializes every call.
type Module interface {
	// Version returns the physics version tag passed to foundation and
	// physics construction.
	Version() uint32

	CreateAllocator(ctx context.Context) (Handle, error)
	CreateErrorCallback(ctx context.Context) (Handle, error)
	CreateFoundation(ctx context.Context, version uint32, allocator, errorCallback Handle) (Handle, error)
	CreatePhysics(ctx context.Context, version uint32, foundation Handle, scale Tolerances) (Handle, error)

	// InitExtensions and CloseExtensions bracket the optional extensions
	// library, which is bound to a physics handle.
	InitExtensions(ctx context.Context, physics Handle) error
	CloseExtensions(ctx context.Context) error

	// Release destroys a single native object.
	Release(ctx context.Context, h Handle) error

	// Close discards the module itself. All handles must be released first.
	Close(ctx context.Context) error
}

// Artifact is a fetched and compiled module build that has not been started.
type Artifact interface {
	// Instantiate runs the module's entry point and yields a live Module.
	Instantiate(ctx context.Context) (Module, error)
}

// Loader fetches and compiles the artifact for a resolved mode.
// Load is never called with ModeAuto.
type Loader interface {
	Load(ctx context.Context, mode Mode) (Artifact, error)
}

// Prober is optionally implemented by a Loader that can tell whether the
// accelerated build is usable on this host.
type Prober interface {
	AcceleratedSupported() bool
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func() bool

func (f ProberFunc) AcceleratedSupported() bool { return f() }
