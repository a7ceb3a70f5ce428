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
	"testing"

	"github.com/stretchr/testify/require"
)

// testPair builds two independent single-output GPs over a shared root,
// with distinct posteriors so combinator identities are not trivially 0==0.
func testPair(t *testing.T) (*BasicInput, *BasicGP, *BasicGP) {
	t.Helper()
	root := testRoot1D(t, 5)
	g1 := GP(root).Done()
	g2 := GP(root).Done()
	g1.Params().Get("alpha_white").SetValue([]float64{0.6, -0.4, 0.2, 0.9, -0.1}, false)
	g2.Params().Get("alpha_white").SetValue([]float64{-0.3, 0.5, -0.7, 0.1, 0.4}, false)
	return root, g1, g2
}

func TestOperationsNeedTwoParents(t *testing.T) {
	root := testRoot1D(t, 4)
	gp := GP(root).Done()
	require.Panics(t, func() { NewAdd(gp) })
	require.Panics(t, func() { NewConcatenate(gp) })
}

func TestOperationsRejectSizeMismatch(t *testing.T) {
	root := testRoot1D(t, 4)
	g1 := GP(root).Done()
	g2 := GP(root).WithSize(2).Done()
	require.Panics(t, func() { NewAdd(g1, g2) })
	require.Panics(t, func() { NewMultiply(g1, g2) })
	require.Panics(t, func() { NewLinearCombination(g1, g2) })
	require.Panics(t, func() { NewProductOfExperts(g1, g2) })
}

func TestAddSumsMoments(t *testing.T) {
	_, g1, g2 := testPair(t)
	sum := NewAdd(g1, g2)
	sum.Refresh(DefaultJitter)

	x := testPoints1D(0.2, 0.5, 0.8)
	pred := sum.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})
	for i := 0; i < 3; i++ {
		require.InDelta(t, p1.Mean.At(0, i)+p2.Mean.At(0, i), pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, p1.Variance.At(0, i)+p2.Variance.At(0, i), pred.Variance.At(0, i), 1e-12)
	}

	ip := sum.InducingPoints()
	for i := 0; i < 5; i++ {
		require.InDelta(t, g1.InducingPoints().At(i, 0)+g2.InducingPoints().At(i, 0),
			ip.At(i, 0), 1e-12)
	}
	require.Equal(t, 0.0, sum.KLDivergence())
}

func TestAddCommutes(t *testing.T) {
	_, g1, g2 := testPair(t)
	a := NewAdd(g1, g2)
	b := NewAdd(g2, g1)
	a.Refresh(DefaultJitter)
	b.Refresh(DefaultJitter)

	x := testPoints1D(0.3, 0.7)
	pa := a.Predict(x, nil, 0, Seed{})
	pb := b.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, pa.Mean.At(0, i), pb.Mean.At(0, i), 1e-12)
		require.InDelta(t, pa.Variance.At(0, i), pb.Variance.At(0, i), 1e-12)
	}
}

func TestMultiplyDeterministicParents(t *testing.T) {
	root := testRoot1D(t, 5)
	prod := NewMultiply(root, root)
	prod.Refresh(DefaultJitter)

	// The root propagates coordinates without spread, so the product of
	// the field with itself is exactly x² with zero variance.
	x := testPoints1D(-1, 0.5, 2)
	pred := prod.Predict(x, nil, 1, Seed{})
	for i, want := range []float64{1, 0.25, 4} {
		require.InDelta(t, want, pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, 0, pred.Variance.At(0, i), 1e-12)
		require.InDelta(t, want, pred.Simulations[0].At(0, i), 1e-12)
	}
}

func TestMultiplyMomentIdentity(t *testing.T) {
	_, g1, g2 := testPair(t)
	prod := NewMultiply(g1, g2)
	prod.Refresh(DefaultJitter)

	x := testPoints1D(0.4)
	pred := prod.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})

	mu1, v1 := p1.Mean.At(0, 0), p1.Variance.At(0, 0)
	mu2, v2 := p2.Mean.At(0, 0), p2.Variance.At(0, 0)
	require.InDelta(t, mu1*mu2, pred.Mean.At(0, 0), 1e-12)
	require.InDelta(t, (mu1*mu1+v1)*(mu2*mu2+v2)-mu1*mu1*mu2*mu2,
		pred.Variance.At(0, 0), 1e-12)
}

func TestConcatenateStacksParents(t *testing.T) {
	_, g1, g2 := testPair(t)
	cat := NewConcatenate(g1, g2)
	cat.Refresh(DefaultJitter)
	require.Equal(t, 2, cat.Size())

	x := testPoints1D(0.1, 0.9)
	pred := cat.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, p1.Mean.At(0, i), pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, p2.Mean.At(0, i), pred.Mean.At(1, i), 1e-12)
	}

	nIP, size := cat.InducingPoints().Dims()
	require.Equal(t, 5, nIP)
	require.Equal(t, 2, size)
}

func TestLinearCombinationStartsBalanced(t *testing.T) {
	_, g1, g2 := testPair(t)
	mix := NewLinearCombination(g1, g2)
	mix.Refresh(DefaultJitter)

	w := mix.Params().Get("weights").Value()
	require.InDelta(t, 0.5, w[0], 1e-12)
	require.InDelta(t, 0.5, w[1], 1e-12)

	x := testPoints1D(0.35, 0.65)
	pred := mix.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})
	for i := 0; i < 2; i++ {
		require.InDelta(t, 0.5*p1.Mean.At(0, i)+0.5*p2.Mean.At(0, i),
			pred.Mean.At(0, i), 1e-12)
		require.InDelta(t, 0.25*p1.Variance.At(0, i)+0.25*p2.Variance.At(0, i),
			pred.Variance.At(0, i), 1e-12)
	}
}

func TestProductOfExpertsStaysInConvexHull(t *testing.T) {
	_, g1, g2 := testPair(t)
	poe := NewProductOfExperts(g1, g2)
	poe.Refresh(DefaultJitter)

	x := testPoints1D(0.2, 0.5, 0.8)
	pred := poe.Predict(x, nil, 0, Seed{})
	p1 := g1.Predict(x, nil, 0, Seed{})
	p2 := g2.Predict(x, nil, 0, Seed{})
	for i := 0; i < 3; i++ {
		lo := p1.Mean.At(0, i)
		hi := p2.Mean.At(0, i)
		if lo > hi {
			lo, hi = hi, lo
		}
		m := pred.Mean.At(0, i)
		require.GreaterOrEqual(t, m, lo-1e-12)
		require.LessOrEqual(t, m, hi+1e-12)
	}
	require.Nil(t, pred.Simulations)
}

func TestLinearTrendGPBlendsParents(t *testing.T) {
	root := testRoot1D(t, 5)
	lin := Lin(root).Done()
	gp := GP(root).Done()
	gp.Params().Get("alpha_white").SetValue([]float64{0.3, -0.6, 0.2, 0.5, -0.4}, false)

	trend := NewLinearTrend(lin, gp)
	trend.Refresh(DefaultJitter)

	x := testPoints1D(0.25, 0.75)
	pred := trend.Predict(x, nil, 0, Seed{})
	linPred := lin.Predict(x, nil, 0, Seed{})
	gpPred := gp.Predict(x, nil, 0, Seed{})

	// gp_weight starts at 0.5: wGp = sqrt(0.5), wLin = sqrt(2·0.5) = 1.
	wGp := 0.7071067811865476
	for i := 0; i < 2; i++ {
		require.InDelta(t, wGp*gpPred.Mean.At(0, i)+linPred.Mean.At(0, i),
			pred.Mean.At(0, i), 1e-12)
	}
}

func TestLinearTrendGPRejectsNonGP(t *testing.T) {
	root := testRoot1D(t, 4)
	lin := Lin(root).Done()
	require.Panics(t, func() { NewLinearTrend(lin, root) })
}
