// Package suspend provides the named, reference-counted blockers that keep
// the device out of kernel suspend while work is pending.
package suspend

import (
	"fmt"
	"log"
	"sync"
)

// #region types

// Sink receives the edge transitions of a blocker: the first acquire and the
// release that brings the count back to zero. Implementations talk to the
// platform suspend mechanism (or record the calls, in tests).
type Sink interface {
	OnBlock(name string)
	OnUnblock(name string)
}

// Blocker is a counted suspend inhibitor. It carries its own small mutex so
// callers may acquire and release it without holding any wider lock.
type Blocker struct {
	mu    sync.Mutex
	name  string
	sink  Sink
	count int
}

// #endregion

// #region blocker

// New returns a blocker with the given diagnostic name. The sink may be nil,
// in which case the blocker only keeps the count.
func New(name string, sink Sink) *Blocker {
	return &Blocker{name: name, sink: sink}
}

// Acquire increments the count, engaging the sink on the zero-to-one edge.
func (b *Blocker) Acquire() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.count == 1 {
		if b.sink != nil {
			b.sink.OnBlock(b.name)
		}
	}
}

// Release decrements the count, disengaging the sink on the one-to-zero edge.
// An unbalanced release is a caller bug: it is logged loudly and the count is
// clamped at zero rather than allowed to go negative.
func (b *Blocker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count--
	if b.count == 0 {
		if b.sink != nil {
			b.sink.OnUnblock(b.name)
		}
	} else if b.count < 0 {
		log.Printf("[SUSPEND] blocker %q released more times than acquired; clamping count to zero", b.name)
		b.count = 0
	}
}

// IsHeld reports whether the count is above zero.
func (b *Blocker) IsHeld() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// String describes the blocker for dump output.
func (b *Blocker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("%s: ref count=%d", b.name, b.count)
}

// #endregion
