// Package collision keeps the per-step collision statistics of a run and
// writes them out as snapshots on a fixed cadence.
package collision

import (
	"fmt"

	"github.com/sarchlab/trapsim/sim"
)

// Parameters configure the box collision model of the host engine.
type Parameters struct {
	// Macroparticle is the number of real atoms each simulated particle
	// stands for.
	Macroparticle float64

	// BoxNumber bounds the number of boxes along each axis.
	BoxNumber int

	// BoxWidth is the edge length of one cubic box.
	BoxWidth float64

	// Sigma is the collisional cross section.
	Sigma float64

	// CollisionLimit caps the collisions counted in one box in one step.
	CollisionLimit float64
}

// Validate checks that every parameter is positive.
func (p Parameters) Validate() error {
	switch {
	case p.Macroparticle <= 0:
		return fmt.Errorf("%w: macroparticle must be positive, got %g",
			sim.ErrConfiguration, p.Macroparticle)
	case p.BoxNumber <= 0:
		return fmt.Errorf("%w: box number must be positive, got %d",
			sim.ErrConfiguration, p.BoxNumber)
	case p.BoxWidth <= 0:
		return fmt.Errorf("%w: box width must be positive, got %g",
			sim.ErrConfiguration, p.BoxWidth)
	case p.Sigma <= 0:
		return fmt.Errorf("%w: cross section must be positive, got %g",
			sim.ErrConfiguration, p.Sigma)
	case p.CollisionLimit <= 0:
		return fmt.Errorf("%w: collision limit must be positive, got %g",
			sim.ErrConfiguration, p.CollisionLimit)
	}

	return nil
}
