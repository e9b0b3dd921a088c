package ramp

import (
	"fmt"

	"github.com/sarchlab/trapsim/sim"
)

// TwoPhaseSchedule describes a power ramp that falls linearly during the first
// half of a run and then holds the final power.
type TwoPhaseSchedule struct {
	Steps        int
	Timestep     float64
	InitialPower float64
	FinalPower   float64
	Rate         float64
}

// LinearRate returns the rate (W/s) that brings initial to final at the
// middle of a run of the given number of steps.
func LinearRate(initial, final float64, steps int, dt float64) float64 {
	return (final - initial) / (0.5 * float64(steps) * dt)
}

// Validate checks the schedule parameters.
func (s TwoPhaseSchedule) Validate() error {
	if s.Steps <= 0 {
		return fmt.Errorf("%w: ramp needs a positive number of steps, got %d",
			sim.ErrConfiguration, s.Steps)
	}

	if s.Timestep <= 0 {
		return fmt.Errorf("%w: ramp timestep must be positive, got %g",
			sim.ErrConfiguration, s.Timestep)
	}

	return nil
}

// HalfStep returns the last step of the linear phase, floor(steps*0.5).
func (s TwoPhaseSchedule) HalfStep() int {
	return s.Steps / 2
}

// Power returns the keyframe power of the given step. Steps up to and
// including HalfStep follow initial + rate*step*dt; later steps hold the final
// power exactly.
func (s TwoPhaseSchedule) Power(step int) float64 {
	if step <= s.HalfStep() {
		return s.InitialPower + s.Rate*float64(step)*s.Timestep
	}

	return s.FinalPower
}

// Keyframes generates one keyframe per step at time step*dt. The value of each
// keyframe is built by applying the step's power to the record returned by
// template.
func Keyframes[T any](
	s TwoPhaseSchedule,
	template func(power float64) T,
) ([]Keyframe[T], error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	frames := make([]Keyframe[T], s.Steps)
	for i := 0; i < s.Steps; i++ {
		frames[i] = Keyframe[T]{
			Time:  float64(i) * s.Timestep,
			Value: template(s.Power(i)),
		}
	}

	return frames, nil
}
