// Package replay drives a [latest] channel from a timed schedule of values.
package replay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/latest"
)

// A Step is a value to be sent at an offset from the start of a replay.
type Step[T any] struct {
	At    time.Duration
	Value T
}

func (s Step[T]) String() string { return fmt.Sprintf("%v@%d", s.Value, s.At.Milliseconds()) }

// Run sends the value of each step to tx at its offset from the start of the
// call. Steps must be in non-decreasing order of offset, otherwise Run
// reports an error without sending anything.
//
// If tx reports [latest.ErrClosed], nobody is listening, and Run returns nil
// without sending the remaining steps. If ctx ends first, Run returns its
// error. Run does not close tx.
func Run[T any](ctx context.Context, tx *latest.Sender[T], steps []Step[T]) error {
	if !slices.IsSortedFunc(steps, func(a, b Step[T]) int { return cmp.Compare(a.At, b.At) }) {
		return errors.New("steps are not in order")
	}
	start := time.Now()
	for _, s := range steps {
		if d := s.At - time.Since(start); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := tx.Send(s.Value); errors.Is(err, latest.ErrClosed) {
			return nil
		} else if err != nil {
			return fmt.Errorf("send %v: %w", s, err)
		}
	}
	return nil
}

// Parse parses a schedule of string values from s. A schedule is a
// comma-separated list of items of the form "ms:label", where ms is a
// non-negative offset in milliseconds. Whitespace around items is ignored.
// An empty string is an empty schedule.
func Parse(s string) ([]Step[string], error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []Step[string]
	for i, item := range strings.Split(s, ",") {
		ms, label, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok {
			return nil, fmt.Errorf("item %d: missing colon in %q", i+1, item)
		}
		n, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("item %d: invalid offset: %w", i+1, err)
		} else if n < 0 {
			return nil, fmt.Errorf("item %d: negative offset %d", i+1, n)
		}
		out = append(out, Step[string]{At: time.Duration(n) * time.Millisecond, Value: label})
	}
	return out, nil
}
