package ports

import (
	"context"

	"github.com/veldtlab/grove/pkg/domain"
)

// Thermo exposes the temperature-dependent thermodynamic properties of one
// species. Units are SI: J/mol for enthalpy, J/(mol*K) for entropy and heat
// capacity.
type Thermo interface {
	EnthalpyJmol(T float64) float64
	EntropyJmolK(T float64) float64
	HeatCapacityJmolK(T float64) float64
}

// ThermoSource resolves thermodynamic properties for species. It backs
// equilibrium-constant evaluation when training data arrives measured in the
// reverse direction.
type ThermoSource interface {
	Thermo(ctx context.Context, s *domain.Species) (Thermo, error)
}

// GibbsJmol is the Gibbs free energy G = H - T*S in J/mol.
func GibbsJmol(th Thermo, T float64) float64 {
	return th.EnthalpyJmol(T) - T*th.EntropyJmolK(T)
}
