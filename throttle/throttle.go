// Package throttle implements a consumer that reacts to changes of a
// [latest] channel no more often than a fixed interval, always acting on the
// most recent value available when it wakes.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/creachadair/latest"
)

// An Event describes a value observed by a [Loop].
type Event[T any] struct {
	Value   T
	Version uint64    // the channel version of Value
	Sent    time.Time // when Value was sent
	Read    time.Time // when the loop woke to observe Value
}

// Func is the type of the action performed by a [Loop] for each event.
type Func[T any] func(Event[T]) error

// A Loop drains a [latest.Receiver] at a bounded rate.
//
// Each iteration waits for a change, reads the current value, calls the
// action, and then sleeps for the loop interval before waiting again. The
// interval thus runs from the end of one action to the start of the next
// wait. A burst of sends arriving within the interval is coalesced into a
// single action on the last value of the burst, and once sends stop, the last
// pending value is acted on exactly once before the loop parks.
type Loop[T any] struct {
	rx       *latest.Receiver[T] // read-only after initialization
	interval time.Duration
	act      Func[T]
}

// New constructs a [Loop] that reads from rx and calls act at most once per
// interval. It panics if rx or act is nil, or if interval < 0.
func New[T any](rx *latest.Receiver[T], interval time.Duration, act Func[T]) *Loop[T] {
	if rx == nil || act == nil {
		panic("throttle: nil receiver or action")
	} else if interval < 0 {
		panic(fmt.Sprintf("throttle: negative interval %v", interval))
	}
	return &Loop[T]{rx: rx, interval: interval, act: act}
}

// Interval reports the throttle interval of l.
func (l *Loop[T]) Interval() time.Duration { return l.interval }

// Run runs the loop until the channel is closed, ctx ends, or the action
// reports an error. Closure of the channel is a normal completion, and Run
// returns nil. If ctx ends, Run returns its error. An error from the action
// is returned as-is and the action is not retried.
//
// Run must not be called concurrently on the same receiver.
func (l *Loop[T]) Run(ctx context.Context) error {
	for {
		if err := l.rx.Changed(ctx); errors.Is(err, latest.ErrClosed) {
			return nil
		} else if err != nil {
			return err
		}
		read := time.Now()
		u := l.rx.Load()
		if err := l.runProtect(Event[T]{
			Value:   u.Value,
			Version: u.Version,
			Sent:    u.Sent,
			Read:    read,
		}); err != nil {
			return err
		}

		if err := sleep(ctx, l.interval); err != nil {
			return err
		}
	}
}

// runProtect calls l.act(e), converting a panic into an error.
func (l *Loop[T]) runProtect(e Event[T]) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("panic in action: %v\n%s", x, string(debug.Stack()))
		}
	}()
	return l.act(e)
}

// sleep blocks for d or until ctx ends, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
