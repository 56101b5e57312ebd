package estimate

import (
	"context"
	"fmt"
	"math"

	"github.com/veldtlab/grove/pkg/domain"
	"github.com/veldtlab/grove/pkg/ports"
)

// referencePressure is the standard-state pressure in Pa used to convert the
// activity equilibrium constant into concentration units.
const referencePressure = 1e5

// ReverseRate fits an Arrhenius model for the reverse direction of rxn by
// evaluating k_rev(T) = k_fwd(T) / Keq(T) over the configured temperature
// grid. Keq comes from the standard Gibbs free energy change supplied by
// src; the fitted units follow the reverse reaction's order. The forward
// kinetics must already be set on the reaction.
func (e *Estimator) ReverseRate(ctx context.Context, rxn *domain.Reaction, src ports.ThermoSource) (*domain.Arrhenius, error) {
	if rxn == nil || rxn.Kinetics == nil || rxn.Kinetics.Kinetics == nil {
		return nil, fmt.Errorf("estimate: no forward kinetics to reverse")
	}
	if src == nil {
		return nil, fmt.Errorf("estimate: nil thermo source")
	}
	if len(rxn.Products) == 0 {
		return nil, fmt.Errorf("estimate: reaction %s has no products", rxn)
	}

	units, err := domain.RateUnits(len(rxn.Products))
	if err != nil {
		return nil, fmt.Errorf("estimate: reverse of %s: %w", rxn, err)
	}

	reactants := make([]ports.Thermo, len(rxn.Reactants))
	for i, s := range rxn.Reactants {
		if reactants[i], err = src.Thermo(ctx, s); err != nil {
			return nil, fmt.Errorf("estimate: thermo for %s: %w", s.Label, err)
		}
	}
	products := make([]ports.Thermo, len(rxn.Products))
	for i, s := range rxn.Products {
		if products[i], err = src.Thermo(ctx, s); err != nil {
			return nil, fmt.Errorf("estimate: thermo for %s: %w", s.Label, err)
		}
	}

	forward := rxn.Kinetics.Kinetics
	moleChange := len(rxn.Products) - len(rxn.Reactants)
	grid := temperatureGrid(e.cfg.FitTmin, e.cfg.FitTmax, e.cfg.FitPoints)
	rates := make([]float64, len(grid))
	for i, T := range grid {
		var dG float64
		for _, th := range products {
			dG += ports.GibbsJmol(th, T)
		}
		for _, th := range reactants {
			dG -= ports.GibbsJmol(th, T)
		}
		keq := math.Exp(-dG / (domain.GasConstant * T))
		// Reference concentration raised to the mole change converts the
		// activity constant to concentration units.
		c0 := referencePressure / (domain.GasConstant * T)
		keq *= math.Pow(c0, float64(moleChange))
		rates[i] = forward.Rate(T) / keq
	}

	reverse, err := fitArrhenius(grid, rates, units)
	if err != nil {
		return nil, fmt.Errorf("estimate: reverse of %s: %w", rxn, err)
	}
	metrics.reverseFits.Inc()
	e.logger.Debug("fitted reverse kinetics",
		"family", rxn.Family, "reaction", rxn.String(), "units", units)
	return reverse, nil
}

// temperatureGrid returns n log-spaced temperatures spanning [lo, hi].
func temperatureGrid(lo, hi float64, n int) []float64 {
	if n < 2 {
		n = 2
	}
	out := make([]float64, n)
	ratio := math.Log(hi / lo)
	for i := range out {
		out[i] = lo * math.Exp(ratio*float64(i)/float64(n-1))
	}
	return out
}

// fitArrhenius solves the linear least squares of ln k over the modified
// Arrhenius basis [1, ln T, -1/(R*T)], giving ln A, n and Ea.
func fitArrhenius(Ts, ks []float64, units string) (*domain.Arrhenius, error) {
	if len(Ts) != len(ks) || len(Ts) < 3 {
		return nil, fmt.Errorf("need at least 3 grid points, got %d", len(Ts))
	}
	var m [3][3]float64
	var v [3]float64
	for i, T := range Ts {
		k := ks[i]
		if !(k > 0) || math.IsInf(k, 1) {
			return nil, fmt.Errorf("unfittable rate %g at %g K", k, T)
		}
		row := [3]float64{1, math.Log(T), -1 / (domain.GasConstant * T)}
		y := math.Log(k)
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				m[r][c] += row[r] * row[c]
			}
			v[r] += row[r] * y
		}
	}
	x, err := solve3(m, v)
	if err != nil {
		return nil, err
	}
	return &domain.Arrhenius{A: math.Exp(x[0]), N: x[1], Ea: x[2], T0: 1, Units: units}, nil
}

// solve3 solves a 3x3 linear system by Gaussian elimination with partial
// pivoting.
func solve3(m [3][3]float64, v [3]float64) ([3]float64, error) {
	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if m[pivot][col] == 0 {
			return [3]float64{}, fmt.Errorf("singular fit matrix")
		}
		m[col], m[pivot] = m[pivot], m[col]
		v[col], v[pivot] = v[pivot], v[col]
		for r := col + 1; r < 3; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < 3; c++ {
				m[r][c] -= f * m[col][c]
			}
			v[r] -= f * v[col]
		}
	}
	var x [3]float64
	for r := 2; r >= 0; r-- {
		sum := v[r]
		for c := r + 1; c < 3; c++ {
			sum -= m[r][c] * x[c]
		}
		x[r] = sum / m[r][r]
	}
	return x, nil
}
