// Package record collects the events processed by a throttled consumer and
// checks their timing.
package record

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/latest/throttle"
)

// An Entry records a single processed value. Sent and Read are offsets from
// the epoch of the log, truncated to whole milliseconds.
type Entry[T any] struct {
	Value T
	Sent  time.Duration
	Read  time.Duration
}

func (e Entry[T]) String() string {
	return fmt.Sprintf("(%v, sent=%d, read=%d)", e.Value, e.Sent.Milliseconds(), e.Read.Milliseconds())
}

// A Log is an append-only sequence of entries. It is safe for concurrent use.
// Its Add method can be used directly as a [throttle.Func].
type Log[T any] struct {
	epoch time.Time // read-only after initialization

	μ       sync.Mutex
	entries []Entry[T]
}

// NewLog constructs an empty log whose offsets are relative to epoch.
func NewLog[T any](epoch time.Time) *Log[T] { return &Log[T]{epoch: epoch} }

// Add appends an entry for e to the log. It never reports an error.
func (l *Log[T]) Add(e throttle.Event[T]) error {
	ent := Entry[T]{
		Value: e.Value,
		Sent:  l.offset(e.Sent),
		Read:  l.offset(e.Read),
	}
	l.μ.Lock()
	defer l.μ.Unlock()
	l.entries = append(l.entries, ent)
	return nil
}

// offset reports the offset of t from the epoch in whole milliseconds.
// The zero time (an initial value that was never sent) maps to 0.
func (l *Log[T]) offset(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return t.Sub(l.epoch).Truncate(time.Millisecond)
}

// Len reports the number of entries in l.
func (l *Log[T]) Len() int {
	l.μ.Lock()
	defer l.μ.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the entries in l, in order of addition.
func (l *Log[T]) Entries() []Entry[T] {
	l.μ.Lock()
	defer l.μ.Unlock()
	out := make([]Entry[T], len(l.entries))
	copy(out, l.entries)
	return out
}

// Check reports whether entries satisfy the timing of a throttled consumer
// with the given interval: No entry is read before it was sent, reads do not
// go backward, and consecutive reads are at least interval apart. Spacing
// shortfalls up to slop are tolerated. The first entry is exempt from the
// spacing rule. All violations found are reported.
func Check[T any](entries []Entry[T], interval, slop time.Duration) error {
	var errs []error
	for i, e := range entries {
		if e.Read < e.Sent {
			errs = append(errs, fmt.Errorf("entry %d %v: read before sent", i, e))
		}
		if i == 0 {
			continue
		}
		gap := e.Read - entries[i-1].Read
		if gap < 0 {
			errs = append(errs, fmt.Errorf("entry %d %v: read %v before the previous read", i, e, -gap))
		} else if gap < interval-slop {
			errs = append(errs, fmt.Errorf("entry %d %v: read %v after the previous read, want at least %v", i, e, gap, interval))
		}
	}
	return errors.Join(errs...)
}
