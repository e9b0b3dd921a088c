// Package physics defines the host engine that owns the particles and
// advances them in time. The driver only talks to it through Engine.
package physics

import (
	"fmt"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/ensemble"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

// Handle identifies a particle registered with an engine.
type Handle int

// Resources are the run-scoped values an engine receives once, before the
// first step.
type Resources struct {
	Timestep   float64
	Collisions collision.Parameters
	Volume     collision.SimulationVolume
}

// Validate checks every resource.
func (r Resources) Validate() error {
	if r.Timestep <= 0 {
		return fmt.Errorf("%w: timestep must be positive, got %g",
			sim.ErrConfiguration, r.Timestep)
	}

	if err := r.Collisions.Validate(); err != nil {
		return err
	}

	return r.Volume.Validate()
}

// Engine is a physics engine that the driver steps.
type Engine interface {
	// InsertResources hands the run-scoped resources to the engine.
	InsertResources(r Resources) error

	// CreateParticle registers one ensemble member.
	CreateParticle(p ensemble.Particle) (Handle, error)

	// SetTrapParameter replaces the current state of a beam.
	SetTrapParameter(beamID int, beam trap.GaussianBeam) error

	// Step advances the engine by dt and returns the collision statistics
	// of the step.
	Step(dt float64) (collision.StepCounts, error)
}

// A Snapshotter can report the current state of all its particles.
type Snapshotter interface {
	Snapshot() []ensemble.Particle
}
