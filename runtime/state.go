package runtime

import (
	"fmt"
	"time"

	physxruntime "github.com/wippyai/physx-runtime"
)

// State is the initialization state of a Runtime.
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Listener observes lifecycle transitions. Callbacks run while the runtime
// holds its lock and must not call back into the Runtime.
type Listener interface {
	OnStateChange(from, to State)
	OnLoad(mode physxruntime.Mode, elapsed time.Duration, err error)
}

// Status is a point-in-time snapshot of a Runtime.
type Status struct {
	State        string   `json:"state"`
	Mode         string   `json:"mode"`
	ResolvedMode string   `json:"resolved_mode,omitempty"`
	Cycle        string   `json:"cycle,omitempty"`
	LastError    string   `json:"last_error,omitempty"`
	Stages       []string `json:"stages,omitempty"`
	Resources    int      `json:"resources"`
	Waiters      int      `json:"waiters,omitempty"`
	Version      uint32   `json:"version,omitempty"`
}

// pending is the single in-flight initialization shared by every caller
// that arrives while the runtime is initializing.
type pending struct {
	done    chan struct{}
	err     error
	waiters int32
}
