package trap

import "math"

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// Polarizability links the local beam intensity to the dipole potential,
// U = -Prefactor * I.
type Polarizability struct {
	Prefactor float64
}

// CalculatePolarizability returns the polarizability of a two-level
// transition with the given wavelength and linewidth (rad/s), driven by a
// dipole beam of beamWavelength. Red-detuned beams give a positive prefactor,
// so the potential is attractive.
func CalculatePolarizability(
	beamWavelength, transitionWavelength, linewidth float64,
) Polarizability {
	omega0 := 2 * math.Pi * SpeedOfLight / transitionWavelength
	omega := 2 * math.Pi * SpeedOfLight / beamWavelength

	prefactor := 3 * math.Pi * SpeedOfLight * SpeedOfLight /
		(2 * omega0 * omega0 * omega0) *
		linewidth *
		(1/(omega0-omega) + 1/(omega0+omega))

	return Polarizability{Prefactor: prefactor}
}

// Potential returns the dipole potential energy at intensity I (W/m^2).
func (p Polarizability) Potential(intensity float64) float64 {
	return -p.Prefactor * intensity
}
