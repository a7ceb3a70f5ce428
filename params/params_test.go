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

package params

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestRealClamp(t *testing.T) {
	p := NewReal("a", []int{2}, []float64{0, 0}, []float64{-1, -1}, []float64{1, 1})
	p.SetValue([]float64{5, -5}, false)
	require.Equal(t, []float64{1, -1}, p.Value())
}

func TestScalar(t *testing.T) {
	p := NewScalar("a", 0.5, 0, 1)
	require.Equal(t, 0.5, p.Scalar())
	require.Empty(t, p.Shape())
	require.Equal(t, 1, p.NumElements())
}

func TestPositiveLogSpace(t *testing.T) {
	p := NewPositive("r", []int{1}, []float64{2}, []float64{0.1}, []float64{10})
	require.InDelta(t, 2, p.Scalar(), 1e-12)
	require.InDelta(t, math.Log(2), p.Transformed()[0], 1e-12)

	p.SetValue([]float64{100}, false)
	require.InDelta(t, 10, p.Scalar(), 1e-12)

	require.Panics(t, func() {
		NewPositive("bad", []int{1}, []float64{-1}, []float64{0.1}, []float64{10})
	})
}

func TestCompositionalSimplex(t *testing.T) {
	p := NewCompositional("w", []float64{0.2, 0.3, 0.5})
	v := p.Value()
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	require.InDelta(t, 1, sum, 1e-12)
	require.InDelta(t, 0.2, v[0], 1e-12)
	require.InDelta(t, 0.5, v[2], 1e-12)

	// Stays on the simplex after an arbitrary transformed-space write.
	p.SetValue([]float64{3, -1, 0.5}, true)
	v = p.Value()
	sum = 0
	for _, x := range v {
		require.Greater(t, x, 0.0)
		sum += x
	}
	require.InDelta(t, 1, sum, 1e-12)
}

func TestCircularWrap(t *testing.T) {
	p := NewCircular("angle", []int{1}, []float64{10}, []float64{0}, []float64{360})
	require.InDelta(t, 10, p.Scalar(), 1e-12)

	p.SetValue([]float64{370}, false)
	require.InDelta(t, 10, p.Scalar(), 1e-9)

	p.SetValue([]float64{-30}, false)
	require.InDelta(t, 330, p.Scalar(), 1e-9)
}

func TestUnitColumnNorm(t *testing.T) {
	p := NewUnitColumnNorm("w", 2, 2,
		[]float64{3, 0, 4, 1},
		[]float64{-10, -10, -10, -10},
		[]float64{10, 10, 10, 10})
	v := p.Value()
	for j := 0; j < 2; j++ {
		norm := math.Hypot(v[j], v[2+j])
		require.InDelta(t, 1, norm, 1e-12)
	}

	// Idempotent: a second refresh must not move an already unit column.
	before := p.Value()
	p.Refresh()
	require.InDeltaSlice(t, before, p.Value(), 1e-12)
}

func TestUnitColumnSum(t *testing.T) {
	p := NewUnitColumnSum("w", 3, 2, []float64{1, 2, 1, 2, 2, 2})
	v := p.Value()
	for j := 0; j < 2; j++ {
		sum := v[j] + v[2+j] + v[4+j]
		require.InDelta(t, 1, sum, 1e-12)
	}
}

func TestFixExcludesFromTraining(t *testing.T) {
	s := NewSet()
	a := s.Add(NewReal("a", []int{2}, []float64{1, 2}, []float64{-10, -10}, []float64{10, 10}))
	s.Add(NewPositive("b", []int{1}, []float64{1}, []float64{0.1}, []float64{10}))

	require.Equal(t, 3, s.NumTrainable())
	a.Fix()
	require.Equal(t, 1, s.NumTrainable())

	values, minT, maxT := s.TrainableValues()
	require.Len(t, values, 1)
	require.Len(t, minT, 1)
	require.Len(t, maxT, 1)

	a.Unfix()
	require.Equal(t, 3, s.NumTrainable())
}

func TestSetTrainableRoundTrip(t *testing.T) {
	s := NewSet()
	s.Add(NewReal("a", []int{2}, []float64{1, 2}, []float64{-10, -10}, []float64{10, 10}))
	s.Add(NewPositive("b", []int{1}, []float64{1}, []float64{0.1}, []float64{10}))

	values, _, _ := s.TrainableValues()
	require.Len(t, values, 3)

	values[0] = 4
	values[2] = math.Log(2)
	s.SetTrainableValues(values)

	require.Equal(t, []float64{4, 2}, s.Get("a").Value())
	require.InDelta(t, 2, s.Get("b").Scalar(), 1e-12)

	require.Panics(t, func() { s.SetTrainableValues(values[:2]) })
}

func TestSetDuplicatePanics(t *testing.T) {
	s := NewSet()
	s.Add(NewScalar("a", 0, -1, 1))
	require.Panics(t, func() { s.Add(NewScalar("a", 0, -1, 1)) })
	require.True(t, s.Has("a"))
	require.Panics(t, func() { s.Get("missing") })
}

func TestRandomizeStaysFeasible(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPositive("r", []int{4},
		[]float64{1, 1, 1, 1}, []float64{0.5, 0.5, 0.5, 0.5}, []float64{2, 2, 2, 2})
	for i := 0; i < 20; i++ {
		p.Randomize(rng)
		for _, v := range p.Value() {
			require.GreaterOrEqual(t, v, 0.5)
			require.LessOrEqual(t, v, 2.0)
		}
	}
}
