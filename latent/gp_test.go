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

	"github.com/geogp/geogp/kernels"
	"github.com/geogp/geogp/params"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testCovModel(ranges ...float64) covarianceModel {
	d := len(ranges)
	lo := make([]float64, d)
	hi := make([]float64, d)
	for i := range ranges {
		lo[i] = 1e-6
		hi[i] = 100
	}
	return covarianceModel{
		kernel: kernels.Gaussian{},
		ranges: params.NewPositive("ranges", []int{1, 1, d}, ranges, lo, hi),
	}
}

func TestCovarianceReducesToKernel(t *testing.T) {
	cm := testCovModel(2)
	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	y := mat.NewDense(2, 1, []float64{0, 3})

	cov := cm.matrix(x, y, nil, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			d := math.Abs(x.At(i, 0)-y.At(j, 0)) / 2
			require.InDelta(t, kernels.Gaussian{}.Kernelize(d), cov.At(i, j), 1e-12)
		}
	}
}

func TestCovarianceShrinksUnderUncertainty(t *testing.T) {
	cm := testCovModel(2)
	x := mat.NewDense(1, 1, []float64{0})
	y := mat.NewDense(1, 1, []float64{0})

	exact := cm.matrix(x, y, nil, nil).At(0, 0)
	require.InDelta(t, 1, exact, 1e-12)

	// Equal variances on both sides cancel in the normalization; an
	// asymmetric pair must shrink the correlation below one.
	varX := mat.NewDense(1, 1, []float64{1})
	symmetric := cm.matrix(x, y, varX, varX).At(0, 0)
	require.InDelta(t, 1, symmetric, 1e-12)

	asymmetric := cm.matrix(x, y, varX, nil).At(0, 0)
	require.Less(t, asymmetric, 1.0)
	require.Greater(t, asymmetric, 0.9)
}

func TestCovarianceRejectsDimMismatch(t *testing.T) {
	cm := testCovModel(2)
	require.Panics(t, func() {
		cm.matrix(mat.NewDense(1, 1, nil), mat.NewDense(1, 2, nil), nil, nil)
	})
	require.Panics(t, func() {
		cm.matrix(mat.NewDense(1, 2, nil), mat.NewDense(1, 2, nil), nil, nil)
	})
}

func TestBasicGPShapes(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).WithSize(2).Done()
	gp.Refresh(DefaultJitter)

	x := testPoints1D(0.1, 0.4, 0.9)
	pred := gp.Predict(x, nil, 3, Seed{Lo: 1})

	rows, cols := pred.Mean.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 3, cols)
	require.Len(t, pred.Simulations, 3)
	for s := 0; s < 2; s++ {
		for i := 0; i < 3; i++ {
			v := pred.Variance.At(s, i)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
			require.GreaterOrEqual(t, pred.ExplainedVariance.At(s, i), 0.0)
		}
	}

	ip := gp.InducingPoints()
	nIP, size := ip.Dims()
	require.Equal(t, 5, nIP)
	require.Equal(t, 2, size)
}

func TestBasicGPReproducesInducingPosterior(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	gp.Params().Get("alpha_white").SetValue([]float64{0.5, -0.3, 0.8, 0.1, -0.6}, false)
	gp.Refresh(DefaultJitter)

	pred := gp.Predict(root.InducingCoordinates(), nil, 0, Seed{})
	ip := gp.InducingPoints()
	ipVar := gp.InducingPointsVariance()
	for i := 0; i < 5; i++ {
		require.InDelta(t, ip.At(i, 0), pred.Mean.At(0, i), 1e-6)
		require.InDelta(t, ipVar.At(i, 0), pred.Variance.At(0, i), 1e-6)
	}
}

func TestBasicGPKLPositive(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	gp.Refresh(DefaultJitter)

	kl := gp.KLDivergence()
	require.Greater(t, kl, 0.0)
	require.False(t, math.IsInf(kl, 0))
	require.False(t, math.IsNaN(kl))
}

func TestBasicGPKLBeforeRefreshPanics(t *testing.T) {
	root := testRoot1D(t, 4)
	gp := GP(root).Done()
	require.Panics(t, func() { gp.KLDivergence() })
}

func TestBasicGPSimulationsReproducible(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	gp.Refresh(DefaultJitter)

	x := testPoints1D(0.2, 0.6)
	a := gp.Predict(x, nil, 2, Seed{Lo: 4, Hi: 9})
	b := gp.Predict(x, nil, 2, Seed{Lo: 4, Hi: 9})
	c := gp.Predict(x, nil, 2, Seed{Lo: 5, Hi: 9})

	require.Equal(t, a.Simulations[0].RawMatrix().Data, b.Simulations[0].RawMatrix().Data)
	require.Equal(t, a.Simulations[1].RawMatrix().Data, b.Simulations[1].RawMatrix().Data)
	require.NotEqual(t, a.Simulations[0].RawMatrix().Data, c.Simulations[0].RawMatrix().Data)
}

func TestBasicGPDirectionalDerivative(t *testing.T) {
	root := testRoot1D(t, 5)
	gp := GP(root).Done()
	gp.Params().Get("alpha_white").SetValue([]float64{1, -1, 0.5, 0, 0.2}, false)
	gp.Refresh(DefaultJitter)

	x := testPoints1D(0.3, 0.7)
	dir := testPoints1D(1, 1)
	dp := gp.PredictDirections(x, dir, DefaultStep)

	// The directional derivative must agree with a finite difference of
	// the posterior mean itself.
	h := 1e-4
	plus := gp.Predict(testPoints1D(0.3+h/2, 0.7+h/2), nil, 0, Seed{})
	minus := gp.Predict(testPoints1D(0.3-h/2, 0.7-h/2), nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		fd := (plus.Mean.At(0, i) - minus.Mean.At(0, i)) / h
		require.InDelta(t, fd, dp.Mean.At(0, i), 1e-3)
		require.GreaterOrEqual(t, dp.Variance.At(0, i), 0.0)
	}
}

func TestCopyGPReplaysSourcePosterior(t *testing.T) {
	root := testRoot1D(t, 5)
	src := GP(root).Done()
	src.Params().Get("alpha_white").SetValue([]float64{0.4, -0.2, 0.7, -0.5, 0.3}, false)

	cp := NewCopyGP(root, src)
	cp.Refresh(1e-6)

	x := testPoints1D(0.15, 0.55, 0.95)
	want := src.Predict(x, nil, 2, Seed{Lo: 2})
	got := cp.Predict(x, nil, 2, Seed{Lo: 2})

	for i := 0; i < 3; i++ {
		require.InDelta(t, want.Mean.At(0, i), got.Mean.At(0, i), 1e-10)
		require.InDelta(t, want.Variance.At(0, i), got.Variance.At(0, i), 1e-10)
	}
	require.InDelta(t, want.Simulations[0].At(0, 0), got.Simulations[0].At(0, 0), 1e-10)
	require.Equal(t, 0.0, cp.KLDivergence())
}

func TestNetworkOutputStacksParents(t *testing.T) {
	root := testRoot1D(t, 5)
	g1 := GP(root).Done()
	g2 := GP(root).WithSize(2).Done()
	out := NewNetworkOutput(g1, g2)
	out.Refresh(DefaultJitter)

	require.Equal(t, 3, out.Size())

	x := testPoints1D(0.25, 0.75)
	pred := out.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, p1.Mean.At(0, i), pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, p2.Mean.At(0, i), pred.Mean.At(1, i), 1e-12)
		require.InDelta(t, p2.Mean.At(1, i), pred.Mean.At(2, i), 1e-12)
	}
}

func TestNetworkOutputKLSumsUniqueAncestors(t *testing.T) {
	root := testRoot1D(t, 5)
	g1 := GP(root).Done()
	g2 := GP(root).Done()
	out := NewNetworkOutput(g1, g2)
	out.Refresh(DefaultJitter)

	require.InDelta(t, g1.KLDivergence()+g2.KLDivergence(), out.KLDivergence(), 1e-12)
}
