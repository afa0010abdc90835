package runtime

import (
	"sync"

	"github.com/wippyai/physx-runtime/errors"
)

// The native module keeps foundation and physics as process-wide singletons,
// so only one Runtime may own a resource chain at a time. Ownership is taken
// when a runtime starts initializing and given back when it is destroyed or
// its load fails.
var (
	ownerMu sync.Mutex
	owner   *Runtime
)

func claim(r *Runtime) error {
	ownerMu.Lock()
	defer ownerMu.Unlock()

	if owner != nil && owner != r {
		return errors.AlreadyExists(errors.PhaseRuntime, "native physics runtime")
	}
	owner = r
	return nil
}

func unclaim(r *Runtime) {
	ownerMu.Lock()
	defer ownerMu.Unlock()

	if owner == r {
		owner = nil
	}
}
