package collision

import (
	"fmt"
	"io"

	"github.com/sarchlab/trapsim/datarecording"
	"github.com/sarchlab/trapsim/sim"
)

const statsTable = "collision_stats"

type statsEntry struct {
	Step       int
	Collisions int32
	Atoms      float64
	Particles  int32
}

// StatsSink records the statistics of every step and, every cadence steps,
// writes a snapshot of the whole history to w.
type StatsSink struct {
	w       io.Writer
	cadence int
	tracker Tracker
	blocks  int

	recorder datarecording.DataRecorder
}

// NewStatsSink creates a sink that writes to w every cadence steps.
func NewStatsSink(w io.Writer, cadence int) (*StatsSink, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: stats sink needs a writer",
			sim.ErrConfiguration)
	}

	if cadence <= 0 {
		return nil, fmt.Errorf("%w: stats cadence must be positive, got %d",
			sim.ErrConfiguration, cadence)
	}

	return &StatsSink{w: w, cadence: cadence}, nil
}

// WithDataRecorder also stores every recorded step as a row of the
// collision_stats table.
func (s *StatsSink) WithDataRecorder(
	r datarecording.DataRecorder,
) (*StatsSink, error) {
	if err := r.CreateTable(statsTable, statsEntry{}); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrIO, err)
	}

	s.recorder = r

	return s, nil
}

// Cadence returns the number of steps between two flush blocks.
func (s *StatsSink) Cadence() int {
	return s.cadence
}

// Record appends the counts of one step.
func (s *StatsSink) Record(step int, counts StepCounts) error {
	s.tracker.Append(counts)

	if s.recorder == nil {
		return nil
	}

	err := s.recorder.InsertData(statsTable, statsEntry{
		Step:       step,
		Collisions: counts.Collisions,
		Atoms:      counts.Atoms,
		Particles:  counts.Particles,
	})
	if err != nil {
		return fmt.Errorf("%w: recording step %d: %w", sim.ErrIO, step, err)
	}

	return nil
}

// ShouldFlush tells if a block is due at the given step.
func (s *StatsSink) ShouldFlush(step int) bool {
	return step > 0 && step%s.cadence == 0
}

// Flush writes a block with the full history if one is due at step. It
// reports whether a block was written.
func (s *StatsSink) Flush(step int) (bool, error) {
	if !s.ShouldFlush(step) {
		return false, nil
	}

	if err := WriteBlock(s.w, step, &s.tracker); err != nil {
		return false, fmt.Errorf("%w: writing collision stats at step %d: %w",
			sim.ErrIO, step, err)
	}

	s.blocks++

	return true, nil
}

// Blocks returns the number of blocks written.
func (s *StatsSink) Blocks() int {
	return s.blocks
}

// Tracker returns the recorded history.
func (s *StatsSink) Tracker() *Tracker {
	return &s.tracker
}
