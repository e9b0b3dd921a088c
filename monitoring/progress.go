package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/trapsim/sim"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID         string
	Name       string
	StartTime  time.Time
	Total      uint64
	Finished   uint64
	InProgress uint64
}

// ProgressBarState is a copy of a progress bar taken under its lock.
type ProgressBarState struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// State returns a consistent copy of the bar.
func (b *ProgressBar) State() ProgressBarState {
	b.Lock()
	defer b.Unlock()

	return ProgressBarState{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// StepProgressHook advances a progress bar as step events are handled. A step
// is in progress between the before and after event hooks.
type StepProgressHook struct {
	Bar *ProgressBar
}

// Func implements sim.Hook.
func (h StepProgressHook) Func(ctx sim.HookCtx) {
	if _, ok := ctx.Item.(sim.StepEvent); !ok {
		return
	}

	switch ctx.Pos {
	case sim.HookPosBeforeEvent:
		h.Bar.IncrementInProgress(1)
	case sim.HookPosAfterEvent:
		h.Bar.MoveInProgressToFinished(1)
	}
}
