package trap

import (
	"fmt"

	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/sim"
)

// A Setup is one beam of a trap together with its transverse frame and the
// light that forms it.
type Setup struct {
	Beam  GaussianBeam
	Frame Frame
	Light DipoleLight
}

// CrossedBeams returns the beams of a dipole trap centered on the origin.
// The first beam runs along x, the second along y.
func CrossedBeams(n int, wavelength, eRadius, power float64) ([]Setup, error) {
	axes := []struct {
		direction geom.Vec3
		frame     Frame
	}{
		{geom.UnitX, Frame{X: geom.UnitY, Y: geom.UnitZ}},
		{geom.UnitY, Frame{X: geom.UnitX, Y: geom.UnitZ}},
	}

	if n < 1 || n > len(axes) {
		return nil, fmt.Errorf("%w: a crossed trap has 1 or 2 beams, got %d",
			sim.ErrConfiguration, n)
	}

	setups := make([]Setup, n)
	for i := range setups {
		setups[i] = Setup{
			Beam: NewGaussianBeam(axes[i].direction,
				wavelength, eRadius, power),
			Frame: axes[i].frame,
			Light: DipoleLight{Wavelength: wavelength},
		}

		if err := setups[i].Beam.Validate(); err != nil {
			return nil, err
		}
	}

	return setups, nil
}
