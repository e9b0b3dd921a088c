// Package ballistic provides a stand-in physics engine. Particles move in
// straight lines and collide according to a box model: the particles inside
// the simulation volume are binned into cubic boxes and each box contributes
// the expected number of binary collisions of a homogeneous gas.
package ballistic

import (
	"fmt"
	"math"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/ensemble"
	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/physics"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

type boxIndex [3]int

type box struct {
	n      int
	sumV   geom.Vec3
	sumVSq float64
}

// Engine is a physics.Engine without forces.
type Engine struct {
	resources *physics.Resources
	particles []ensemble.Particle
	beams     map[int]trap.GaussianBeam
	steps     int
}

// NewEngine creates an engine with no particles.
func NewEngine() *Engine {
	return &Engine{
		beams: make(map[int]trap.GaussianBeam),
	}
}

// InsertResources stores the run-scoped resources.
func (e *Engine) InsertResources(r physics.Resources) error {
	if err := r.Validate(); err != nil {
		return err
	}

	e.resources = &r

	return nil
}

// CreateParticle adds a particle and returns its index as the handle.
func (e *Engine) CreateParticle(p ensemble.Particle) (physics.Handle, error) {
	e.particles = append(e.particles, p)
	return physics.Handle(len(e.particles) - 1), nil
}

// SetTrapParameter stores the beam. Beams exert no force in this engine.
func (e *Engine) SetTrapParameter(beamID int, beam trap.GaussianBeam) error {
	if err := beam.Validate(); err != nil {
		return fmt.Errorf("beam %d: %w", beamID, err)
	}

	e.beams[beamID] = beam

	return nil
}

// Beam returns the last state pushed for a beam.
func (e *Engine) Beam(beamID int) (trap.GaussianBeam, bool) {
	b, ok := e.beams[beamID]
	return b, ok
}

// NumSteps returns the number of completed steps.
func (e *Engine) NumSteps() int {
	return e.steps
}

// Snapshot returns a copy of the current particle states.
func (e *Engine) Snapshot() []ensemble.Particle {
	out := make([]ensemble.Particle, len(e.particles))
	copy(out, e.particles)

	return out
}

// Step moves every particle by v*dt and then counts collisions.
func (e *Engine) Step(dt float64) (collision.StepCounts, error) {
	if e.resources == nil {
		return collision.StepCounts{}, fmt.Errorf(
			"%w: resources must be inserted before stepping",
			sim.ErrConfiguration)
	}

	for i := range e.particles {
		p := &e.particles[i]
		p.Position = p.Position.Add(p.Velocity.Scale(dt))
	}

	e.steps++

	return e.countCollisions(dt), nil
}

func (e *Engine) countCollisions(dt float64) collision.StepCounts {
	params := e.resources.Collisions
	boxes := make(map[boxIndex]*box)
	counted := 0

	for _, p := range e.particles {
		if !e.resources.Volume.Includes(p.Position) {
			continue
		}

		idx, ok := e.boxOf(p.Position)
		if !ok {
			continue
		}

		b, found := boxes[idx]
		if !found {
			b = &box{}
			boxes[idx] = b
		}

		b.n++
		b.sumV = b.sumV.Add(p.Velocity)
		b.sumVSq += p.Velocity.Dot(p.Velocity)
		counted++
	}

	volume := params.BoxWidth * params.BoxWidth * params.BoxWidth

	var collisions int64
	for _, b := range boxes {
		collisions += int64(math.Round(
			expectedCollisions(b, params, volume, dt)))
	}

	counts := collision.StepCounts{
		Collisions: int32(collisions),
		Particles:  int32(counted),
	}

	if len(boxes) > 0 {
		counts.Atoms = params.Macroparticle * float64(counted) /
			float64(len(boxes))
	}

	return counts
}

func (e *Engine) boxOf(p geom.Vec3) (boxIndex, bool) {
	params := e.resources.Collisions
	half := params.BoxNumber / 2
	center := e.resources.Volume.Shape.Center

	var idx boxIndex
	for i, c := range [3]float64{
		p.X - center.X,
		p.Y - center.Y,
		p.Z - center.Z,
	} {
		k := int(math.Floor(c/params.BoxWidth)) + half
		if k < 0 || k >= params.BoxNumber {
			return idx, false
		}
		idx[i] = k
	}

	return idx, true
}

// expectedCollisions is 0.5*n*(n-1)*macro*sigma*vrel*dt/V, capped at the
// collision limit. vrel is the RMS relative speed of two particles of the
// box, sqrt(2) times the RMS speed about the box mean velocity.
func expectedCollisions(
	b *box,
	params collision.Parameters,
	volume, dt float64,
) float64 {
	if b.n < 2 {
		return 0
	}

	n := float64(b.n)
	mean := b.sumV.Scale(1 / n)
	variance := b.sumVSq/n - mean.Dot(mean)
	if variance < 0 {
		variance = 0
	}

	vrel := math.Sqrt(2 * variance)
	c := 0.5 * n * (n - 1) * params.Macroparticle * params.Sigma * vrel * dt /
		volume

	return math.Min(c, params.CollisionLimit)
}
