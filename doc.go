// Package physxruntime bootstraps a native physics engine compiled to
// WebAssembly and owns its lifecycle.
//
// The root package holds the small contracts every other package agrees on:
// the runtime Mode, native Handle values, and the Module/Artifact/Loader
// interfaces that separate the lifecycle manager from how a module build is
// fetched and executed.
//
// # Architecture Overview
//
//	physxruntime/        Root package with Mode, Handle and module contracts
//	├── runtime/         Lifecycle manager: state machine, single-flight load
//	├── engine/          wazero integration: capability probe and loader
//	├── artifact/        Fetching module builds over HTTP or from disk
//	├── resource/        Ordered native resource chain with reverse release
//	├── errors/          Structured error types
//	├── config/          YAML/TOML/JSON configuration
//	├── metrics/         Prometheus collectors for lifecycle events
//	├── server/          Admin HTTP surface (readiness, status, metrics)
//	└── cmd/physx/       CLI
//
// # Quick Start
//
//	fetcher := artifact.NewFetcher(artifact.DefaultSources())
//	eng, err := engine.New(ctx, fetcher, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	rt := runtime.New(eng)
//	if err := rt.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Destroy(ctx)
//
//	physics, err := rt.Physics()
//
// # Modes
//
// ModeAccelerated runs the release build under wazero's compiler backend.
// ModeInterpreted runs the portable build under the interpreter backend and
// works everywhere. ModeAuto probes the host once and picks between them.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Concurrent Initialize calls share a
// single load. Module implementations are driven by the runtime only and do
// not need their own locking.
package physxruntime
