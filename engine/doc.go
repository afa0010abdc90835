// Package engine runs native physics module builds on wazero.
//
// An Engine implements physxruntime.Loader and physxruntime.Prober. Load
// fetches the build for a resolved mode, compiles it with the matching
// wazero backend (compiler for ModeAccelerated, interpreter for
// ModeInterpreted) and returns an Artifact. Instantiate links the host
// imports, runs the module's entry point and binds its export ABI:
//
//	px_init() -> i32                        0 on success
//	px_version() -> i32                     version tag for construction
//	px_create_allocator() -> i32            handle
//	px_create_error_callback() -> i32       handle
//	px_create_foundation(i32, i32, i32) -> i32
//	px_create_physics(i32, i32, f32, f32) -> i32
//	px_init_extensions(i32) -> i32          optional, nonzero on success
//	px_close_extensions()                   optional
//	px_release(i32)
//
// Handles are 32-bit values; 0 is the null handle and always an error.
//
// The module may import physx_host.report_error(code, ptr, len), which
// forwards native error reports to the package logger.
//
// Every Load creates its own wazero runtime. Compiled code is shared
// through a compilation cache that lives as long as the Engine.
package engine
