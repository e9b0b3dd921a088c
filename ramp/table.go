// Package ramp provides time-indexed keyframe ramps. A ramp holds the value of
// the latest keyframe that has been reached, and is queried once per step with
// a non-decreasing time so that each lookup costs O(1) amortized.
package ramp

import (
	"fmt"

	"github.com/sarchlab/trapsim/sim"
)

// A Keyframe marks the time at which a ramped parameter jumps to a new value.
type Keyframe[T any] struct {
	Time  float64
	Value T
}

// A Table is an ordered list of keyframes together with a cursor pointing at
// the keyframe that is currently in effect. The cursor only moves forward.
//
// A Table is not safe for concurrent use.
type Table[T any] struct {
	keyframes []Keyframe[T]
	prev      int
}

// NewTable creates a Table over the given keyframes. The keyframes must not be
// empty and their times must not decrease.
func NewTable[T any](keyframes []Keyframe[T]) (*Table[T], error) {
	if len(keyframes) == 0 {
		return nil, fmt.Errorf("%w: ramp needs at least one keyframe",
			sim.ErrConfiguration)
	}

	for i := 1; i < len(keyframes); i++ {
		if keyframes[i].Time < keyframes[i-1].Time {
			return nil, fmt.Errorf(
				"%w: keyframe %d at t=%g precedes keyframe %d at t=%g",
				sim.ErrConfiguration,
				i, keyframes[i].Time, i-1, keyframes[i-1].Time,
			)
		}
	}

	return &Table[T]{keyframes: keyframes}, nil
}

// Evaluate moves the cursor to the last keyframe whose time is not after now
// and returns that keyframe's value. Before the first keyframe the first value
// is returned; after the last keyframe the last value is held.
//
// Calls must use non-decreasing times. The cursor never moves back, so an
// earlier time returns the value of the keyframe reached so far.
func (t *Table[T]) Evaluate(now float64) T {
	for t.prev+1 < len(t.keyframes) && t.keyframes[t.prev+1].Time <= now {
		t.prev++
	}

	return t.keyframes[t.prev].Value
}

// Cursor returns the index of the keyframe currently in effect.
func (t *Table[T]) Cursor() int {
	return t.prev
}

// Len returns the number of keyframes.
func (t *Table[T]) Len() int {
	return len(t.keyframes)
}

// Keyframe returns the i-th keyframe.
func (t *Table[T]) Keyframe(i int) Keyframe[T] {
	return t.keyframes[i]
}

// Clone returns a table that shares the keyframes but has its own cursor,
// positioned where this table's cursor is.
func (t *Table[T]) Clone() *Table[T] {
	return &Table[T]{
		keyframes: t.keyframes,
		prev:      t.prev,
	}
}
