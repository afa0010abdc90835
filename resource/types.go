package resource

import (
	"context"
	"fmt"

	physxruntime "github.com/wippyai/physx-runtime"
)

// Stage identifies a link in the native resource chain.
// Stages are constructed in ascending order and released in descending order.
type Stage uint8

const (
	StageAllocator Stage = iota
	StageErrorCallback
	StageFoundation
	StagePhysics
	StageExtensions
)

func (s Stage) String() string {
	switch s {
	case StageAllocator:
		return "allocator"
	case StageErrorCallback:
		return "error-callback"
	case StageFoundation:
		return "foundation"
	case StagePhysics:
		return "physics"
	case StageExtensions:
		return "extensions"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Event types for chain lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	if t == EventCreated {
		return "created"
	}
	return "released"
}

// Event represents a chain lifecycle event.
type Event struct {
	Err    error
	Handle physxruntime.Handle
	Stage  Stage
	Type   EventType
}

// Observer receives notifications about chain lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ReleaseFunc destroys the native object behind one chain entry.
type ReleaseFunc func(ctx context.Context) error
