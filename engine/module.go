package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
)

const moduleName = "physx"

// Exported entry points of the module build.
const (
	exportInit                = "px_init"
	exportVersion             = "px_version"
	exportCreateAllocator     = "px_create_allocator"
	exportCreateErrorCallback = "px_create_error_callback"
	exportCreateFoundation    = "px_create_foundation"
	exportCreatePhysics       = "px_create_physics"
	exportInitExtensions      = "px_init_extensions"
	exportCloseExtensions     = "px_close_extensions"
	exportRelease             = "px_release"
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	f32 = api.ValueTypeF32
)

var requiredExports = map[string]signature{
	exportInit:                {results: []api.ValueType{i32}},
	exportVersion:             {results: []api.ValueType{i32}},
	exportCreateAllocator:     {results: []api.ValueType{i32}},
	exportCreateErrorCallback: {results: []api.ValueType{i32}},
	exportCreateFoundation:    {params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32}},
	exportCreatePhysics:       {params: []api.ValueType{i32, i32, f32, f32}, results: []api.ValueType{i32}},
	exportRelease:             {params: []api.ValueType{i32}},
}

// Extensions are optional; a build without them fails only when asked to
// initialize extensions.
var optionalExports = map[string]signature{
	exportInitExtensions:  {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
	exportCloseExtensions: {},
}

// wasmModule adapts the module's flat export ABI to physxruntime.Module.
type wasmModule struct {
	runtime wazero.Runtime
	mod     api.Module
	fns     map[string]api.Function
	version uint32
	mu      sync.Mutex
	closed  bool
}

func bind(r wazero.Runtime, mod api.Module) (*wasmModule, error) {
	m := &wasmModule{
		runtime: r,
		mod:     mod,
		fns:     make(map[string]api.Function, len(requiredExports)+len(optionalExports)),
	}
	for name, sig := range requiredExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, errors.NotFound(errors.PhaseEntry, "export", name)
		}
		if err := checkSignature(name, fn, sig); err != nil {
			return nil, err
		}
		m.fns[name] = fn
	}
	for name, sig := range optionalExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			continue
		}
		if err := checkSignature(name, fn, sig); err != nil {
			return nil, err
		}
		m.fns[name] = fn
	}
	return m, nil
}

func checkSignature(name string, fn api.Function, want signature) error {
	def := fn.Definition()
	if !sameTypes(def.ParamTypes(), want.params) || !sameTypes(def.ResultTypes(), want.results) {
		return errors.InvalidData(errors.PhaseEntry,
			fmt.Sprintf("export %s has signature %v -> %v, want %v -> %v",
				name, typeNames(def.ParamTypes()), typeNames(def.ResultTypes()),
				typeNames(want.params), typeNames(want.results)))
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeNames(ts []api.ValueType) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

// start runs px_init and reads the version tag.
func (m *wasmModule) start(ctx context.Context) error {
	res, err := m.fns[exportInit].Call(ctx)
	if err != nil {
		return errors.ModuleEntry("call "+exportInit, err)
	}
	if code := int32(uint32(res[0])); code != 0 {
		return errors.ModuleEntry(fmt.Sprintf("%s returned %d", exportInit, code), nil)
	}

	res, err = m.fns[exportVersion].Call(ctx)
	if err != nil {
		return errors.ModuleEntry("call "+exportVersion, err)
	}
	m.version = uint32(res[0])
	return nil
}

func (m *wasmModule) Version() uint32 {
	return m.version
}

func (m *wasmModule) CreateAllocator(ctx context.Context) (physxruntime.Handle, error) {
	return m.create(ctx, exportCreateAllocator)
}

func (m *wasmModule) CreateErrorCallback(ctx context.Context) (physxruntime.Handle, error) {
	return m.create(ctx, exportCreateErrorCallback)
}

func (m *wasmModule) CreateFoundation(ctx context.Context, version uint32, allocator, errorCallback physxruntime.Handle) (physxruntime.Handle, error) {
	return m.create(ctx, exportCreateFoundation,
		api.EncodeU32(version),
		api.EncodeU32(uint32(allocator)),
		api.EncodeU32(uint32(errorCallback)))
}

func (m *wasmModule) CreatePhysics(ctx context.Context, version uint32, foundation physxruntime.Handle, scale physxruntime.Tolerances) (physxruntime.Handle, error) {
	return m.create(ctx, exportCreatePhysics,
		api.EncodeU32(version),
		api.EncodeU32(uint32(foundation)),
		api.EncodeF32(scale.Length),
		api.EncodeF32(scale.Speed))
}

func (m *wasmModule) InitExtensions(ctx context.Context, physics physxruntime.Handle) error {
	fn, ok := m.fns[exportInitExtensions]
	if !ok {
		return errors.NotFound(errors.PhaseConstruct, "export", exportInitExtensions)
	}
	res, err := m.call(ctx, fn, api.EncodeU32(uint32(physics)))
	if err != nil {
		return err
	}
	if res[0] == 0 {
		return errors.InvalidData(errors.PhaseConstruct, exportInitExtensions+" reported failure")
	}
	return nil
}

func (m *wasmModule) CloseExtensions(ctx context.Context) error {
	fn, ok := m.fns[exportCloseExtensions]
	if !ok {
		return nil
	}
	_, err := m.call(ctx, fn)
	return err
}

func (m *wasmModule) Release(ctx context.Context, h physxruntime.Handle) error {
	if h == 0 {
		return errors.InvalidInput(errors.PhaseRelease, "release of null handle")
	}
	_, err := m.call(ctx, m.fns[exportRelease], api.EncodeU32(uint32(h)))
	return err
}

// Close closes the module and the wazero runtime that hosted it.
func (m *wasmModule) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return multierr.Append(m.mod.Close(ctx), m.runtime.Close(ctx))
}

func (m *wasmModule) create(ctx context.Context, name string, params ...uint64) (physxruntime.Handle, error) {
	res, err := m.call(ctx, m.fns[name], params...)
	if err != nil {
		return 0, err
	}
	h := physxruntime.Handle(uint32(res[0]))
	if h == 0 {
		return 0, errors.InvalidData(errors.PhaseConstruct, name+" returned a null handle")
	}
	return h, nil
}

func (m *wasmModule) call(ctx context.Context, fn api.Function, params ...uint64) ([]uint64, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "module "+fn.Definition().Name())
	}
	return fn.Call(ctx, params...)
}
