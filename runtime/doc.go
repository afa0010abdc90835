// Package runtime provides the lifecycle manager for the native physics
// module.
//
// # Quick Start
//
//	rt := runtime.New(loader, runtime.WithMode(physxruntime.ModeAuto))
//	if err := rt.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Destroy(ctx)
//
//	physics, err := rt.Physics()
//
// # State Machine
//
//	State           Entered by                      On Initialize
//	──────────────────────────────────────────────────────────────────────
//	Uninitialized   New, Destroy, failed load       starts a new load
//	Initializing    Initialize from Uninitialized   waits on the shared load
//	Ready           successful load                 returns nil at once
//
// A load resolves the mode (probing the host for ModeAuto), asks the
// Loader for the artifact, runs its entry point, and builds the resource
// chain allocator -> error-callback -> foundation -> physics. Any failure
// releases what was built, closes the module, and returns the runtime to
// Uninitialized so Initialize can be retried. Every caller waiting on that
// load receives the same error.
//
// # Destroy
//
// Destroy releases the chain in reverse order and closes the module. On an
// uninitialized runtime it does nothing. While a load is pending, Destroy
// waits for it to settle before tearing down.
//
// # Single Owner
//
// The module's foundation and physics objects are process-wide singletons.
// Only one Runtime may hold a resource chain at a time; a second runtime's
// Initialize fails with errors.KindAlreadyExists until the first is
// destroyed.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Accessors fail with
// errors.KindNotInitialized unless the runtime is ready, and handles they
// return are invalid after Destroy.
package runtime
