package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// probeModule is the smallest valid module: magic and version, no sections.
var probeModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
}

// Probe reports whether the accelerated build can run on this host by
// compiling and instantiating probeModule under the compiler backend.
//
// Any failure, including a panic from an unsupported platform, means "no".
// The probe runtime is closed before Probe returns.
func Probe(ctx context.Context) (supported bool) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Debug("compiler probe panicked", zap.Any("panic", rec))
			supported = false
		}
	}()

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigCompiler())
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, probeModule)
	if err != nil {
		Logger().Debug("compiler probe: compile failed", zap.Error(err))
		return false
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		Logger().Debug("compiler probe: instantiate failed", zap.Error(err))
		return false
	}
	_ = mod.Close(ctx)
	return true
}
