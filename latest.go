// Package latest implements a single-slot value channel in which each send
// overwrites the previous value and wakes any receivers waiting for a change.
//
// A channel is created by [New], which returns the sending side and a first
// receiver. Each [Receiver] tracks independently which version of the value it
// has last observed, so that a receiver can block until a version it has not
// yet seen is stored. Sends never block: if several values are sent before a
// receiver looks, only the most recent one is visible to it.
package latest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is reported by a send when no receivers remain, and by a receiver
// when the sender has closed and no unseen value remains.
var ErrClosed = errors.New("channel is closed")

// An Update is a snapshot of the value stored in a channel.
type Update[T any] struct {
	Value   T         // the stored value
	Sent    time.Time // when Value was sent (zero for the initial value)
	Version uint64    // send generation, 0 for the initial value
}

// state is shared between a sender and all its receivers.
type state[T any] struct {
	μ      sync.Mutex
	cur    Update[T]
	nrecv  int           // number of open receivers
	closed bool          // the sender has been closed
	ready  chan struct{} // signal channel for waiters, lazily allocated
}

// signalLocked wakes all goroutines blocked in Changed.
// The caller must hold s.μ.
func (s *state[T]) signalLocked() {
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
}

// New constructs a channel holding init, and returns its sender and a receiver.
// The initial value counts as already observed by the receiver.
func New[T any](init T) (*Sender[T], *Receiver[T]) {
	s := &state[T]{cur: Update[T]{Value: init}, nrecv: 1}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// A Sender is the producing side of a channel. Its methods are safe for
// concurrent use, though a channel is meant to have a single producer.
type Sender[T any] struct {
	s *state[T]
}

// Send stores v as the current value, replacing any value not yet observed
// by the receivers, and wakes any goroutines blocked in [Receiver.Changed].
// Send does not block. It reports [ErrClosed] without storing v if all the
// receivers have been closed, or if s was closed.
func (s *Sender[T]) Send(v T) error {
	s.s.μ.Lock()
	defer s.s.μ.Unlock()
	if s.s.closed || s.s.nrecv == 0 {
		return ErrClosed
	}
	s.s.cur = Update[T]{Value: v, Sent: time.Now(), Version: s.s.cur.Version + 1}
	s.s.signalLocked()
	return nil
}

// Subscribe returns a new receiver for s. The value current at the time of
// the call counts as already observed by the new receiver.
func (s *Sender[T]) Subscribe() *Receiver[T] {
	s.s.μ.Lock()
	defer s.s.μ.Unlock()
	s.s.nrecv++
	return &Receiver[T]{s: s.s, seen: s.s.cur.Version}
}

// ReceiverCount reports the number of receivers of s that are not closed.
func (s *Sender[T]) ReceiverCount() int {
	s.s.μ.Lock()
	defer s.s.μ.Unlock()
	return s.s.nrecv
}

// Close closes the sending side. Receivers may still observe a value sent
// before Close; after that, [Receiver.Changed] reports [ErrClosed].
// Close is idempotent.
func (s *Sender[T]) Close() {
	s.s.μ.Lock()
	defer s.s.μ.Unlock()
	if !s.s.closed {
		s.s.closed = true
		s.s.signalLocked()
	}
}

// A Receiver is a handle to observe the value of a channel. A Receiver must
// not be used concurrently by multiple goroutines; use [Receiver.Clone] to
// obtain a handle for another goroutine.
type Receiver[T any] struct {
	s    *state[T]
	seen uint64 // last version observed by this receiver
	done bool   // this receiver has been closed
}

// Get returns the current value of the channel, whether or not r has
// observed it. Get never blocks.
func (r *Receiver[T]) Get() T {
	r.s.μ.Lock()
	defer r.s.μ.Unlock()
	return r.s.cur.Value
}

// Load returns the current value of the channel with its send time and
// version, and marks that version as observed by r.
func (r *Receiver[T]) Load() Update[T] {
	r.s.μ.Lock()
	defer r.s.μ.Unlock()
	if !r.done {
		r.seen = r.s.cur.Version
	}
	return r.s.cur
}

// HasChanged reports whether the channel holds a version r has not observed.
// It reports [ErrClosed] if r is closed, or if the sender is closed and no
// unseen value remains. HasChanged does not block or modify r.
func (r *Receiver[T]) HasChanged() (bool, error) {
	r.s.μ.Lock()
	defer r.s.μ.Unlock()
	if r.done {
		return false, ErrClosed
	} else if r.s.cur.Version != r.seen {
		return true, nil
	} else if r.s.closed {
		return false, ErrClosed
	}
	return false, nil
}

// Changed blocks until the channel holds a version r has not yet observed,
// then marks that version as observed and returns nil. A value sent before
// the sender closed is reported before [ErrClosed].
//
// If ctx ends first, Changed returns the context error and r is unchanged.
// If r is closed, or the sender is closed with nothing left unseen, Changed
// reports [ErrClosed].
func (r *Receiver[T]) Changed(ctx context.Context) error {
	r.s.μ.Lock()
	for {
		if r.done {
			r.s.μ.Unlock()
			return ErrClosed
		} else if v := r.s.cur.Version; v != r.seen {
			r.seen = v
			r.s.μ.Unlock()
			return nil
		} else if r.s.closed {
			r.s.μ.Unlock()
			return ErrClosed
		}

		// N.B. The ready channel is captured while the lock is held, so a send
		// that follows the check above must close this channel.
		if r.s.ready == nil {
			r.s.ready = make(chan struct{})
		}
		ready := r.s.ready
		r.s.μ.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
		r.s.μ.Lock()
	}
}

// Clone returns a new receiver for the same channel, which has observed the
// same version as r. Clone panics if r is closed.
func (r *Receiver[T]) Clone() *Receiver[T] {
	r.s.μ.Lock()
	defer r.s.μ.Unlock()
	if r.done {
		panic("clone of closed receiver")
	}
	r.s.nrecv++
	return &Receiver[T]{s: r.s, seen: r.seen}
}

// Close closes r. Once every receiver of a channel is closed, sends to it
// report [ErrClosed]. Close is idempotent.
func (r *Receiver[T]) Close() {
	r.s.μ.Lock()
	defer r.s.μ.Unlock()
	if !r.done {
		r.done = true
		r.s.nrecv--
	}
}
