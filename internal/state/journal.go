// Package state provides the serialized execution host, the undo journal that makes
// every entry point all-or-nothing, and the non-reentrant guards components hold
// for the duration of a mutating call.
package state

import (
	"fmt"
)

// Journal records undo closures for in-memory mutations made inside an atomic frame.
// Mutations made outside any frame are permanent (setup, tests).
type Journal struct {
	frames   []*frame
	onCommit []func()
}

type frame struct {
	undo []func()
}

// NewJournal creates an empty journal
func NewJournal() *Journal {
	return &Journal{}
}

// Active reports whether an atomic frame is open
func (j *Journal) Active() bool {
	return len(j.frames) > 0
}

// Depth returns the number of open frames
func (j *Journal) Depth() int {
	return len(j.frames)
}

// Record registers an undo closure against the innermost frame
func (j *Journal) Record(undo func()) {
	if len(j.frames) == 0 {
		return
	}
	top := j.frames[len(j.frames)-1]
	top.undo = append(top.undo, undo)
}

// OnCommit queues fn to run once the outermost frame commits.
// Outside a frame fn runs immediately.
func (j *Journal) OnCommit(fn func()) {
	if len(j.frames) == 0 {
		fn()
		return
	}
	j.onCommit = append(j.onCommit, fn)
}

// Atomic runs fn inside a nested frame. If fn returns an error or panics, every
// mutation recorded since the frame opened is undone in reverse order.
// On success an inner frame is folded into its parent; the outermost frame
// runs the queued commit hooks.
func (j *Journal) Atomic(fn func() error) (err error) {
	j.frames = append(j.frames, &frame{})
	hooksMark := len(j.onCommit)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in atomic frame: %v", p)
		}

		top := j.frames[len(j.frames)-1]
		j.frames = j.frames[:len(j.frames)-1]

		if err != nil {
			for i := len(top.undo) - 1; i >= 0; i-- {
				top.undo[i]()
			}
			j.onCommit = j.onCommit[:hooksMark]
			return
		}

		if len(j.frames) > 0 {
			parent := j.frames[len(j.frames)-1]
			parent.undo = append(parent.undo, top.undo...)
			return
		}

		hooks := j.onCommit
		j.onCommit = nil
		for _, h := range hooks {
			h()
		}
	}()

	err = fn()
	return err
}
