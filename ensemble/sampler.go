package ensemble

import (
	"fmt"
	"math/rand/v2"

	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

// A Particle is the initial state of one ensemble member.
type Particle struct {
	Position       geom.Vec3
	Velocity       geom.Vec3
	Mass           float64
	Polarizability trap.Polarizability
}

// A Sampler draws particles from a horizontal distribution, used for the x
// and y axes, and a vertical one, used for z. The first output dimension of
// each distribution is the position and the second is the velocity along the
// axis.
type Sampler struct {
	horizontal     *Gaussian2D
	vertical       *Gaussian2D
	mass           float64
	polarizability trap.Polarizability
}

// NewSampler creates a Sampler. The mass is in atomic mass units.
func NewSampler(
	horizontal, vertical *Gaussian2D,
	mass float64,
	polarizability trap.Polarizability,
) (*Sampler, error) {
	if horizontal == nil || vertical == nil {
		return nil, fmt.Errorf("%w: sampler needs both distributions",
			sim.ErrConfiguration)
	}

	if mass <= 0 {
		return nil, fmt.Errorf("%w: particle mass must be positive, got %g",
			sim.ErrConfiguration, mass)
	}

	return &Sampler{
		horizontal:     horizontal,
		vertical:       vertical,
		mass:           mass,
		polarizability: polarizability,
	}, nil
}

// Draw samples one particle: a horizontal draw for x, another for y, then a
// vertical draw for z.
func (s *Sampler) Draw(rng *rand.Rand) Particle {
	x := s.horizontal.Draw(rng)
	y := s.horizontal.Draw(rng)
	z := s.vertical.Draw(rng)

	return Particle{
		Position:       geom.Vec3{X: x[0], Y: y[0], Z: z[0]},
		Velocity:       geom.Vec3{X: x[1], Y: y[1], Z: z[1]},
		Mass:           s.mass,
		Polarizability: s.polarizability,
	}
}

// Generate samples count particles in draw order.
func (s *Sampler) Generate(rng *rand.Rand, count int) ([]Particle, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: particle count must not be negative, got %d",
			sim.ErrConfiguration, count)
	}

	particles := make([]Particle, count)
	for i := range particles {
		particles[i] = s.Draw(rng)
	}

	return particles, nil
}
