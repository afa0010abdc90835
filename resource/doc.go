// Package resource tracks the chain of native singletons a physics module
// hands out during bootstrap.
//
// The chain is strictly ordered:
//
//	allocator -> error-callback -> foundation -> physics [-> extensions]
//
// Each stage needs every earlier stage alive. Construction pushes stages in
// that order; Release walks them backwards:
//
//	chain := resource.NewChain(observer)
//	if err := chain.Push(resource.StageAllocator, h, release); err != nil {
//	    ...
//	}
//	defer chain.Release(ctx)
//
// # Observers
//
// Observers see every EventCreated and EventReleased, which is how the
// metrics package keeps a live resource count.
//
// # Memory Management
//
// Handles are not garbage collected by the module. An entry that is never
// released leaks native memory inside the module instance until the module
// itself is closed.
package resource
