package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	physxruntime "github.com/wippyai/physx-runtime"
)

// testVersion is the version tag the native fake reports (5.1.0).
const testVersion = 5<<24 | 1<<16

const nativeModuleName = "physx_native"

// wasmType is a function type in the binary encoding.
type wasmType struct {
	params  []api.ValueType
	results []api.ValueType
}

// wasmImport re-exports a function imported from nativeModuleName.
type wasmImport struct {
	field  string
	export string
	typ    wasmType
}

func leb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmName(s string) []byte {
	return append(leb128(uint32(len(s))), s...)
}

func wasmSection(id byte, entries [][]byte) []byte {
	payload := leb128(uint32(len(entries)))
	for _, e := range entries {
		payload = append(payload, e...)
	}
	out := []byte{id}
	out = append(out, leb128(uint32(len(payload)))...)
	return append(out, payload...)
}

// encodeModule builds a module that imports every function from
// nativeModuleName and exports it under its px_* name. Imported functions
// can be exported directly, so no code section is needed.
func encodeModule(imports []wasmImport) []byte {
	var types [][]byte
	typeIndex := map[string]uint32{}
	var imps, exps [][]byte

	for i, imp := range imports {
		enc := []byte{0x60}
		enc = append(enc, leb128(uint32(len(imp.typ.params)))...)
		enc = append(enc, imp.typ.params...)
		enc = append(enc, leb128(uint32(len(imp.typ.results)))...)
		enc = append(enc, imp.typ.results...)

		idx, ok := typeIndex[string(enc)]
		if !ok {
			idx = uint32(len(types))
			typeIndex[string(enc)] = idx
			types = append(types, enc)
		}

		entry := append(wasmName(nativeModuleName), wasmName(imp.field)...)
		entry = append(entry, 0x00)
		imps = append(imps, append(entry, leb128(idx)...))

		exp := append(wasmName(imp.export), 0x00)
		exps = append(exps, append(exp, leb128(uint32(i))...))
	}

	out := append([]byte(nil), probeModule...)
	out = append(out, wasmSection(1, types)...)
	out = append(out, wasmSection(2, imps)...)
	return append(out, wasmSection(7, exps)...)
}

// encodeReporter builds a module that imports physx_host.report_error and
// exports "report" (code, ptr, len) forwarding to it, plus one page of
// memory holding msg at offset 0.
func encodeReporter(msg string) []byte {
	// (i32, i32, i32) -> ()
	sig := []byte{0x60, 0x03, i32, i32, i32, 0x00}

	imp := append(wasmName(hostModuleName), wasmName("report_error")...)
	imp = append(imp, 0x00, 0x00)

	reportExp := append(wasmName("report"), 0x00, 0x01)
	memExp := append(wasmName("memory"), 0x02, 0x00)

	// no locals; local.get 0..2; call 0; end
	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x20, 0x02, 0x10, 0x00, 0x0b}
	code := append(leb128(uint32(len(body))), body...)

	// active segment for memory 0 at i32.const 0
	data := []byte{0x00, 0x41, 0x00, 0x0b}
	data = append(data, wasmName(msg)...)

	out := append([]byte(nil), probeModule...)
	out = append(out, wasmSection(1, [][]byte{sig})...)
	out = append(out, wasmSection(2, [][]byte{imp})...)
	out = append(out, wasmSection(3, [][]byte{{0x00}})...)
	out = append(out, wasmSection(5, [][]byte{{0x00, 0x01}})...)
	out = append(out, wasmSection(7, [][]byte{reportExp, memExp})...)
	out = append(out, wasmSection(10, [][]byte{code})...)
	return append(out, wasmSection(11, [][]byte{data})...)
}

var (
	sigHandle     = wasmType{results: []api.ValueType{i32}}
	sigFoundation = wasmType{params: []api.ValueType{i32, i32, i32}, results: []api.ValueType{i32}}
	sigPhysics    = wasmType{params: []api.ValueType{i32, i32, f32, f32}, results: []api.ValueType{i32}}
	sigInitExt    = wasmType{params: []api.ValueType{i32}, results: []api.ValueType{i32}}
	sigVoid       = wasmType{}
	sigRelease    = wasmType{params: []api.ValueType{i32}}
)

func fullImports() []wasmImport {
	return []wasmImport{
		{"init", exportInit, sigHandle},
		{"version", exportVersion, sigHandle},
		{"create_allocator", exportCreateAllocator, sigHandle},
		{"create_error_callback", exportCreateErrorCallback, sigHandle},
		{"create_foundation", exportCreateFoundation, sigFoundation},
		{"create_physics", exportCreatePhysics, sigPhysics},
		{"init_extensions", exportInitExtensions, sigInitExt},
		{"close_extensions", exportCloseExtensions, sigVoid},
		{"release", exportRelease, sigRelease},
	}
}

// without drops the import exported as name.
func without(imports []wasmImport, name string) []wasmImport {
	var out []wasmImport
	for _, imp := range imports {
		if imp.export != name {
			out = append(out, imp)
		}
	}
	return out
}

// native is a Go stand-in for the native library behind the module ABI.
type native struct {
	live        map[uint32]string
	physicsArgs physxruntime.Tolerances
	mu          sync.Mutex
	next        uint32
	initCode    int32
	extensions  bool
	nullStage   string
}

func newNative() *native {
	return &native{live: map[uint32]string{}}
}

func (n *native) alloc(kind string) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if kind == n.nullStage {
		return 0
	}
	n.next++
	n.live[n.next] = kind
	return n.next
}

func (n *native) liveCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.live)
}

// instantiate is a Config.HostModules hook providing nativeModuleName.
func (n *native) instantiate(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(nativeModuleName).
		NewFunctionBuilder().
		WithFunc(func(context.Context) int32 { return n.initCode }).
		Export("init").
		NewFunctionBuilder().
		WithFunc(func(context.Context) uint32 { return testVersion }).
		Export("version").
		NewFunctionBuilder().
		WithFunc(func(context.Context) uint32 { return n.alloc("allocator") }).
		Export("create_allocator").
		NewFunctionBuilder().
		WithFunc(func(context.Context) uint32 { return n.alloc("error-callback") }).
		Export("create_error_callback").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, version, allocator, callback uint32) uint32 {
			if version != testVersion || allocator == 0 || callback == 0 {
				return 0
			}
			return n.alloc("foundation")
		}).
		Export("create_foundation").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, version, foundation uint32, length, speed float32) uint32 {
			if version != testVersion || foundation == 0 {
				return 0
			}
			n.mu.Lock()
			n.physicsArgs = physxruntime.Tolerances{Length: length, Speed: speed}
			n.mu.Unlock()
			return n.alloc("physics")
		}).
		Export("create_physics").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, physics uint32) uint32 {
			n.mu.Lock()
			defer n.mu.Unlock()
			if physics == 0 {
				return 0
			}
			n.extensions = true
			return 1
		}).
		Export("init_extensions").
		NewFunctionBuilder().
		WithFunc(func(context.Context) {
			n.mu.Lock()
			n.extensions = false
			n.mu.Unlock()
		}).
		Export("close_extensions").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, h uint32) {
			n.mu.Lock()
			delete(n.live, h)
			n.mu.Unlock()
		}).
		Export("release").
		Instantiate(ctx)
	return err
}

type fetcherFunc func(ctx context.Context, mode physxruntime.Mode) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, mode physxruntime.Mode) ([]byte, error) {
	return f(ctx, mode)
}

func staticFetcher(data []byte) fetcherFunc {
	return func(context.Context, physxruntime.Mode) ([]byte, error) {
		return data, nil
	}
}
