package resource

import (
	"context"

	"go.uber.org/multierr"

	physxruntime "github.com/wippyai/physx-runtime"
	"github.com/wippyai/physx-runtime/errors"
)

type entry struct {
	release ReleaseFunc
	handle  physxruntime.Handle
	stage   Stage
}

// Chain is an ordered set of dependent native handles. Each entry depends on
// every earlier entry being alive, so entries are pushed in strictly
// ascending Stage order and released in exactly the reverse order.
//
// Chain is not safe for concurrent use; its owner serializes access.
type Chain struct {
	observers []Observer
	entries   []entry
}

// NewChain creates an empty chain notifying the given observers.
func NewChain(observers ...Observer) *Chain {
	return &Chain{observers: observers}
}

// Push appends a live native object. The stage must come after the last
// pushed stage and the handle must be non-zero.
func (c *Chain) Push(stage Stage, h physxruntime.Handle, release ReleaseFunc) error {
	if h == 0 {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			Stage(stage.String()).
			Detail("zero handle").
			Build()
	}
	if n := len(c.entries); n > 0 && c.entries[n-1].stage >= stage {
		return errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
			Stage(stage.String()).
			Detail("out of order after %s", c.entries[n-1].stage).
			Build()
	}

	c.entries = append(c.entries, entry{stage: stage, handle: h, release: release})
	c.notify(Event{Type: EventCreated, Stage: stage, Handle: h})
	return nil
}

// Handle returns the handle stored for stage.
func (c *Chain) Handle(stage Stage) (physxruntime.Handle, bool) {
	for _, e := range c.entries {
		if e.stage == stage {
			return e.handle, true
		}
	}
	return 0, false
}

// Len returns the number of live entries.
func (c *Chain) Len() int {
	return len(c.entries)
}

// Stages returns the live stages in construction order.
func (c *Chain) Stages() []Stage {
	stages := make([]Stage, len(c.entries))
	for i, e := range c.entries {
		stages[i] = e.stage
	}
	return stages
}

// Release destroys every entry, last constructed first. A failing release
// does not stop the walk: later-constructed objects are already gone, and
// the remaining ones must still be released. The chain is empty afterwards
// and the returned error combines every failure.
func (c *Chain) Release(ctx context.Context) error {
	var err error
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		var relErr error
		if e.release != nil {
			if rerr := e.release(ctx); rerr != nil {
				relErr = errors.Release(e.stage.String(), rerr)
				err = multierr.Append(err, relErr)
			}
		}
		c.entries = c.entries[:i]
		c.notify(Event{Type: EventReleased, Stage: e.stage, Handle: e.handle, Err: relErr})
	}
	return err
}

func (c *Chain) notify(e Event) {
	for _, o := range c.observers {
		o.OnResourceEvent(e)
	}
}
