package domain

import (
	"fmt"
	"math"
)

// GasConstant is R in J/(mol*K).
const GasConstant = 8.314462618

// Arrhenius is the modified Arrhenius expression
// k(T) = A * (T/T0)^N * exp(-Ea / (R*T)).
// A's units depend on the reaction order (see RateUnits); Ea is in J/mol,
// temperatures in K.
type Arrhenius struct {
	A     float64 `json:"a" yaml:"a"`
	N     float64 `json:"n" yaml:"n"`
	Ea    float64 `json:"ea" yaml:"ea"`
	T0    float64 `json:"t0,omitempty" yaml:"t0,omitempty"`
	Units string  `json:"units,omitempty" yaml:"units,omitempty"`
}

// Rate evaluates k(T). A zero T0 is treated as 1 K.
func (a *Arrhenius) Rate(T float64) float64 {
	t0 := a.T0
	if t0 == 0 {
		t0 = 1
	}
	return a.A * math.Pow(T/t0, a.N) * math.Exp(-a.Ea/(GasConstant*T))
}

// Copy returns an independent copy.
func (a *Arrhenius) Copy() *Arrhenius {
	out := *a
	return &out
}

// ScaleA multiplies the pre-exponential factor, e.g. by a path degeneracy.
func (a *Arrhenius) ScaleA(f float64) { a.A *= f }

// ChangeT0 renormalizes the expression to a new reference temperature
// without changing k(T).
func (a *Arrhenius) ChangeT0(T0 float64) {
	old := a.T0
	if old == 0 {
		old = 1
	}
	a.A *= math.Pow(T0/old, a.N)
	a.T0 = T0
}

// RateUncertainty is the uncertainty model attached to a fitted rule: the
// mean and variance of the deviation dln(k) observed at Tref over N training
// reactions.
type RateUncertainty struct {
	Mu          float64 `json:"mu" yaml:"mu"`
	Var         float64 `json:"var" yaml:"var"`
	N           int     `json:"n" yaml:"n"`
	Tref        float64 `json:"tref" yaml:"tref"`
	Correlation string  `json:"correlation,omitempty" yaml:"correlation,omitempty"`
}

// ExpectedLogUncertainty is the expected |dln(k)| at Tref,
// sqrt(2/pi) * sqrt(Var + Mu^2). Dividing by 0.398 (= sqrt(2/pi)/2)
// converts it to a two-sigma spread.
func (u *RateUncertainty) ExpectedLogUncertainty() float64 {
	return math.Sqrt(2.0/math.Pi) * math.Sqrt(u.Var+u.Mu*u.Mu)
}

// Copy returns an independent copy.
func (u *RateUncertainty) Copy() *RateUncertainty {
	out := *u
	return &out
}

// RateRule is a rate model attached to a tree node or estimated for a
// reaction: the kinetics themselves plus uncertainty and provenance.
type RateRule struct {
	Kinetics    *Arrhenius       `json:"kinetics" yaml:"kinetics"`
	Uncertainty *RateUncertainty `json:"uncertainty,omitempty" yaml:"uncertainty,omitempty"`
	Comment     string           `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Copy deep-copies the rule.
func (r *RateRule) Copy() *RateRule {
	out := &RateRule{Comment: r.Comment}
	if r.Kinetics != nil {
		out.Kinetics = r.Kinetics.Copy()
	}
	if r.Uncertainty != nil {
		out.Uncertainty = r.Uncertainty.Copy()
	}
	return out
}

// RateUnits returns the units of the pre-exponential factor for a reaction
// of the given order (number of reactant molecules, 0 for pure surface
// coverage).
func RateUnits(order int) (string, error) {
	switch order {
	case 0:
		return "mol/(m^3*s)", nil
	case 1:
		return "s^-1", nil
	case 2:
		return "m^3/(mol*s)", nil
	case 3:
		return "m^6/(mol^2*s)", nil
	}
	return "", fmt.Errorf("no rate units defined for reaction order %d", order)
}

// OrderFromUnits is the inverse of RateUnits.
func OrderFromUnits(units string) (int, error) {
	switch units {
	case "mol/(m^3*s)":
		return 0, nil
	case "s^-1":
		return 1, nil
	case "m^3/(mol*s)":
		return 2, nil
	case "m^6/(mol^2*s)":
		return 3, nil
	}
	return 0, fmt.Errorf("unrecognized rate units %q", units)
}
