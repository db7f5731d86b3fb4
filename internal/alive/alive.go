// Package alive provides a one-shot "holder is gone" signal.
//
// A Flag is held by the party whose liveness is watched. Dropping every
// holder of the flag is the only way to signal death, and a Tracker lets any
// number of goroutines block on or probe for that death.
package alive

import (
	"sync"
	"sync/atomic"
)

type state struct {
	holders atomic.Int64
	dead    chan struct{}
}

// Flag marks its holder as alive until Drop is called.
type Flag struct {
	state *state
	once  sync.Once
}

// Tracker observes the death of a Flag and all of its clones.
type Tracker struct {
	state *state
}

// Pair returns a fresh flag and the tracker watching it.
func Pair() (*Flag, *Tracker) {
	s := &state{dead: make(chan struct{})}
	s.holders.Store(1)
	return &Flag{state: s}, &Tracker{state: s}
}

// Clone returns an additional holder of the same flag. The tracker reports
// death only after every clone and the original have been dropped.
// Cloning a flag that was already dropped is not allowed.
func (f *Flag) Clone() *Flag {
	f.state.holders.Add(1)
	return &Flag{state: f.state}
}

// Drop releases this holder. Repeated calls on the same Flag are no-ops.
func (f *Flag) Drop() {
	f.once.Do(func() {
		if f.state.holders.Add(-1) == 0 {
			close(f.state.dead)
		}
	})
}

// WaitForDeath blocks until the flag has been dropped by every holder.
// It returns immediately once death has been observed.
func (t *Tracker) WaitForDeath() {
	<-t.state.dead
}

// Dead reports whether the flag is gone without blocking.
func (t *Tracker) Dead() bool {
	select {
	case <-t.state.dead:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the flag dies.
func (t *Tracker) Done() <-chan struct{} {
	return t.state.dead
}
