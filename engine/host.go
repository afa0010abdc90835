package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	hostModuleName = "physx_host"
	wasiModuleName = "wasi_snapshot_preview1"
)

// Error codes reported through the native error callback (PxErrorCode).
const (
	errorCodeDebugInfo        = 1
	errorCodeDebugWarning     = 2
	errorCodeInvalidParameter = 4
	errorCodeInvalidOperation = 8
	errorCodeOutOfMemory      = 16
	errorCodeInternalError    = 32
	errorCodeAbort            = 64
	errorCodePerfWarning      = 128
)

// maxReportLen bounds how much of a report message is copied out of guest memory.
const maxReportLen = 4096

func errorCodeName(code uint32) string {
	switch code {
	case errorCodeDebugInfo:
		return "debug_info"
	case errorCodeDebugWarning:
		return "debug_warning"
	case errorCodeInvalidParameter:
		return "invalid_parameter"
	case errorCodeInvalidOperation:
		return "invalid_operation"
	case errorCodeOutOfMemory:
		return "out_of_memory"
	case errorCodeInternalError:
		return "internal_error"
	case errorCodeAbort:
		return "abort"
	case errorCodePerfWarning:
		return "perf_warning"
	default:
		return "unknown"
	}
}

func errorCodeLevel(code uint32) zapcore.Level {
	switch code {
	case errorCodeDebugInfo:
		return zapcore.DebugLevel
	case errorCodeDebugWarning, errorCodePerfWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// instantiateImports instantiates every host module the compiled artifact
// may import: WASI preview1 when referenced, physx_host always, then any
// modules supplied through Config.HostModules.
func (e *Engine) instantiateImports(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule) error {
	if importsModule(compiled, wasiModuleName) {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
			return err
		}
	}
	if _, err := e.instantiateHost(ctx, r); err != nil {
		return err
	}
	if e.cfg.HostModules != nil {
		return e.cfg.HostModules(ctx, r)
	}
	return nil
}

func importsModule(compiled wazero.CompiledModule, name string) bool {
	for _, def := range compiled.ImportedFunctions() {
		if mod, _, ok := def.Import(); ok && mod == name {
			return true
		}
	}
	return false
}

// instantiateHost provides physx_host.report_error(code, msg_ptr, msg_len),
// which backs the default error callback inside the module.
func (e *Engine) instantiateHost(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	return r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, code, ptr, length uint32) {
			e.reports.Add(1)
			Logger().Log(errorCodeLevel(code), "native error callback",
				zap.String("code", errorCodeName(code)),
				zap.Uint32("raw_code", code),
				zap.String("message", readMessage(m, ptr, length)))
		}).
		Export("report_error").
		Instantiate(ctx)
}

func readMessage(m api.Module, ptr, length uint32) string {
	if m == nil || length == 0 {
		return ""
	}
	mem := m.Memory()
	if mem == nil {
		return ""
	}
	if length > maxReportLen {
		length = maxReportLen
	}
	b, ok := mem.Read(ptr, length)
	if !ok {
		return ""
	}
	return string(b)
}
