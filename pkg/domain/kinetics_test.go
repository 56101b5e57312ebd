package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrheniusRate(t *testing.T) {
	k := &Arrhenius{A: 1e13, N: 0, Ea: 100000}
	want := 1e13 * math.Exp(-100000/(GasConstant*1000))
	assert.InEpsilon(t, want, k.Rate(1000), 1e-12)

	// Temperature exponent uses T/T0 with T0 defaulting to 1 K.
	k2 := &Arrhenius{A: 2, N: 1, Ea: 0}
	assert.InEpsilon(t, 600, k2.Rate(300), 1e-12)
}

func TestArrheniusChangeT0(t *testing.T) {
	k := &Arrhenius{A: 4e8, N: 1.5, Ea: 30000, T0: 300}
	before := k.Rate(750)

	k.ChangeT0(1)
	assert.Equal(t, 1.0, k.T0)
	assert.InEpsilon(t, before, k.Rate(750), 1e-12)
	assert.InEpsilon(t, 4e8/math.Pow(300, 1.5), k.A, 1e-12)
}

func TestRateUnitsByOrder(t *testing.T) {
	pairs := map[int]string{
		0: "mol/(m^3*s)",
		1: "s^-1",
		2: "m^3/(mol*s)",
		3: "m^6/(mol^2*s)",
	}
	for order, units := range pairs {
		got, err := RateUnits(order)
		require.NoError(t, err)
		assert.Equal(t, units, got)

		back, err := OrderFromUnits(units)
		require.NoError(t, err)
		assert.Equal(t, order, back)
	}

	_, err := RateUnits(4)
	assert.Error(t, err)
	_, err = OrderFromUnits("furlongs per fortnight")
	assert.Error(t, err)
}

func TestExpectedLogUncertainty(t *testing.T) {
	u := &RateUncertainty{Mu: 0, Var: 4, N: 3, Tref: 1000}
	assert.InEpsilon(t, math.Sqrt(2/math.Pi)*2, u.ExpectedLogUncertainty(), 1e-12)
}
