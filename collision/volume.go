package collision

import (
	"fmt"

	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/sim"
)

// VolumeType tells whether a volume selects the particles inside or outside
// its shape.
type VolumeType int

// Volume types.
const (
	Inclusive VolumeType = iota
	Exclusive
)

func (t VolumeType) String() string {
	switch t {
	case Inclusive:
		return "inclusive"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("VolumeType(%d)", int(t))
	}
}

// ParseVolumeType converts "inclusive" or "exclusive" to a VolumeType.
func ParseVolumeType(s string) (VolumeType, error) {
	switch s {
	case "inclusive", "":
		return Inclusive, nil
	case "exclusive":
		return Exclusive, nil
	default:
		return 0, fmt.Errorf("%w: unknown volume type %q",
			sim.ErrConfiguration, s)
	}
}

// SimulationVolume tags the particles that take part in collision
// accounting.
type SimulationVolume struct {
	Shape geom.Sphere
	Type  VolumeType
}

// Includes tells if a particle at p is counted.
func (v SimulationVolume) Includes(p geom.Vec3) bool {
	inside := v.Shape.Contains(p)
	if v.Type == Exclusive {
		return !inside
	}

	return inside
}

// Validate checks the volume shape.
func (v SimulationVolume) Validate() error {
	if v.Shape.Radius <= 0 {
		return fmt.Errorf("%w: volume radius must be positive, got %g",
			sim.ErrConfiguration, v.Shape.Radius)
	}

	if v.Type != Inclusive && v.Type != Exclusive {
		return fmt.Errorf("%w: unknown volume type %d",
			sim.ErrConfiguration, int(v.Type))
	}

	return nil
}
