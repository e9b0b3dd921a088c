// Package trap describes the optical dipole trap: the Gaussian beams that form
// it and the polarizability of the trapped species.
package trap

import (
	"fmt"
	"math"

	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/sim"
)

// GaussianBeam is the ramped parameter record of one trapping beam.
type GaussianBeam struct {
	// Intersection is a point the beam axis passes through.
	Intersection geom.Vec3

	// ERadius is the 1/e radius of the intensity profile at the waist.
	ERadius float64

	// Power is the beam power in watts.
	Power float64

	// Direction is the unit vector along the beam axis.
	Direction geom.Vec3

	// RayleighRange is the distance from the waist at which the beam area
	// doubles.
	RayleighRange float64

	// Ellipticity of the beam cross section, 0 for a round beam.
	Ellipticity float64
}

// WithPower returns a copy of the beam with the power replaced.
func (b GaussianBeam) WithPower(power float64) GaussianBeam {
	b.Power = power
	return b
}

// Validate checks that the beam is physically meaningful.
func (b GaussianBeam) Validate() error {
	if b.ERadius <= 0 {
		return fmt.Errorf("%w: beam e-radius must be positive, got %g",
			sim.ErrConfiguration, b.ERadius)
	}

	if b.Power < 0 {
		return fmt.Errorf("%w: beam power must not be negative, got %g",
			sim.ErrConfiguration, b.Power)
	}

	if math.Abs(b.Direction.Norm()-1) > 1e-9 {
		return fmt.Errorf("%w: beam direction must be a unit vector",
			sim.ErrConfiguration)
	}

	return nil
}

// RayleighRange returns the Rayleigh range of a beam with the given
// wavelength and 1/e radius.
func RayleighRange(wavelength, eRadius float64) float64 {
	return 2 * math.Pi * eRadius * eRadius / wavelength
}

// NewGaussianBeam creates a round beam through the origin.
func NewGaussianBeam(
	direction geom.Vec3,
	wavelength, eRadius, power float64,
) GaussianBeam {
	return GaussianBeam{
		ERadius:       eRadius,
		Power:         power,
		Direction:     direction,
		RayleighRange: RayleighRange(wavelength, eRadius),
	}
}

// DipoleLight marks a beam as a dipole-trapping beam of a given wavelength.
type DipoleLight struct {
	Wavelength float64
}

// Frame holds the two transverse axes of a beam.
type Frame struct {
	X geom.Vec3
	Y geom.Vec3
}
