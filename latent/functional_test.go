/*
 *	Copyright 2024 The geogp Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package latent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearBinaryDiscriminant(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	gp.Params().Get("alpha_white").SetValue([]float64{0.4, -0.2, 0.6, -0.5, 0.1}, false)

	lin := Lin(gp).WithSize(2).Done()
	lin.Refresh(DefaultJitter)

	w := lin.Params().Get("weights")
	require.True(t, w.Fixed())
	require.Equal(t, []float64{1, -1}, w.Value())

	x := testPoints1D(0.2, 0.8)
	pred := lin.Predict(x, nil, 0, Seed{})
	parent := gp.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, parent.Mean.At(0, i), pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, -parent.Mean.At(0, i), pred.Mean.At(1, i), 1e-12)
		require.InDelta(t, parent.Variance.At(0, i), pred.Variance.At(0, i), 1e-12)
		require.InDelta(t, parent.Variance.At(0, i), pred.Variance.At(1, i), 1e-12)
	}
}

func TestLinearUnitNormColumns(t *testing.T) {
	root := testRoot1D(t, 4)
	gp := GP(root).WithSize(3).Done()
	lin := Lin(gp).WithSize(2).Done()

	w := lin.Params().Get("weights")
	w.Refresh()
	vals := w.Value()
	for c := 0; c < 2; c++ {
		norm := 0.0
		for r := 0; r < 3; r++ {
			norm += vals[r*2+c] * vals[r*2+c]
		}
		require.InDelta(t, 1, norm, 1e-12)
	}
}

func TestSelectInputPicksColumns(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).WithSize(3).Done()
	sel := NewSelectInput(gp, []int{2, 0})
	sel.Refresh(DefaultJitter)
	require.Equal(t, 2, sel.Size())

	x := testPoints1D(0.3, 0.6)
	pred := sel.Predict(x, nil, 2, Seed{})
	parent := gp.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, parent.Mean.At(2, i), pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, parent.Mean.At(0, i), pred.Mean.At(1, i), 1e-12)
	}
	// Simulations of a deterministic selection copy the mean.
	require.Equal(t, pred.Mean.RawMatrix().Data, pred.Simulations[0].RawMatrix().Data)

	require.Panics(t, func() { NewSelectInput(gp, []int{3}) })
	require.Panics(t, func() { NewSelectInput(gp, nil) })
}

func TestBiasShiftsMean(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	bias := NewBias(gp, 5)
	bias.Params().Get("bias").SetValue([]float64{2}, false)
	bias.Refresh(DefaultJitter)

	x := testPoints1D(0.4, 0.8)
	pred := bias.Predict(x, nil, 0, Seed{})
	parent := gp.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, parent.Mean.At(0, i)+2, pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, parent.Variance.At(0, i), pred.Variance.At(0, i), 1e-12)
	}

	// A constant shift leaves directional derivatives untouched.
	dir := testPoints1D(1, 1)
	dpBias := bias.PredictDirections(x, dir, DefaultStep)
	dpGP := gp.PredictDirections(x, dir, DefaultStep)
	require.InDelta(t, dpGP.Mean.At(0, 0), dpBias.Mean.At(0, 0), 1e-12)

	require.Panics(t, func() { NewBias(gp, 0) })
}

func TestExponentiationLognormalMoments(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	amp := NewExponentiation(gp)
	amp.Refresh(DefaultJitter)

	x := testPoints1D(0.2, 0.5, 0.8)
	pred := amp.Predict(x, nil, 2, Seed{Lo: 3})
	parent := gp.Predict(x, nil, 2, Seed{Lo: 3})
	for i := 0; i < 3; i++ {
		mu := parent.Mean.At(0, i) * 0.5 // sqrt of the initial amp_scale 0.25
		v := parent.Variance.At(0, i) * 0.25
		require.InDelta(t, math.Exp(mu)*(1+0.5*v), pred.Mean.At(0, i), 1e-12)
		require.Greater(t, pred.Mean.At(0, i), 0.0)
		require.GreaterOrEqual(t, pred.Variance.At(0, i), 0.0)
		require.Greater(t, pred.Simulations[0].At(0, i), 0.0)
	}
}

func TestRadialTrendPiecewiseProfile(t *testing.T) {
	root := testRoot1D(t, 5)
	trend := NewRadialTrend(root, 1)
	trend.Refresh(DefaultJitter)

	// Center 0 and scale 1: quadratic bump inside the unit radius, the
	// matching tail up to 2 and zero beyond.
	x := testPoints1D(0, 0.5, 1.5, 2.5)
	pred := trend.Predict(x, nil, 1, Seed{})
	wants := []float64{1, 0.75, -0.75, 0}
	for i, want := range wants {
		require.InDelta(t, want, pred.Mean.At(0, i), 1e-6)
		require.Equal(t, 0.0, pred.Variance.At(0, i))
	}
	require.Equal(t, pred.Mean.RawMatrix().Data, pred.Simulations[0].RawMatrix().Data)

	require.Panics(t, func() { NewRadialTrend(root, 0) })
}

func TestRadialTrendDirectionalDerivative(t *testing.T) {
	root := testRoot1D(t, 5)
	trend := NewRadialTrend(root, 1)
	trend.Refresh(DefaultJitter)

	// Inside the unit radius the trend is 1 − x², so the derivative along
	// e1 is −2x.
	x := testPoints1D(0.3, -0.4)
	dir := testPoints1D(1, 1)
	dp := trend.PredictDirections(x, dir, DefaultStep)
	require.InDelta(t, -0.6, dp.Mean.At(0, 0), 1e-5)
	require.InDelta(t, 0.8, dp.Mean.At(0, 1), 1e-5)
}
