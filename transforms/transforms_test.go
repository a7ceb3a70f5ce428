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

package transforms

import (
	"testing"

	"github.com/geogp/geogp/pointset"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestIdentity(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	out := Identity{}.Apply(x)
	require.Equal(t, x.RawMatrix().Data, out.RawMatrix().Data)
	require.NotSame(t, x, out)
	require.Equal(t, 3, Identity{}.OutputDim(3))
	require.Nil(t, Identity{}.AllParameters())
}

func TestIsotropicScaling(t *testing.T) {
	tr := NewIsotropic(2)
	x := mat.NewDense(2, 2, []float64{2, 4, -2, 0})
	out := tr.Apply(x)
	require.InDelta(t, 1, out.At(0, 0), 1e-12)
	require.InDelta(t, 2, out.At(0, 1), 1e-12)
	require.InDelta(t, -1, out.At(1, 0), 1e-12)

	require.Panics(t, func() { NewIsotropic(0) })
}

func TestIsotropicSetLimits(t *testing.T) {
	tr := NewIsotropic(1000)
	data := pointset.FromSlice(2, 2, []float64{0, 0, 3, 4})
	tr.SetLimits(data)

	// The diagonal is 5, so the range must be clamped into [0.05, 10].
	r := tr.AllParameters()[0]
	require.LessOrEqual(t, r.Value()[0], 10.0)
	require.GreaterOrEqual(t, r.Value()[0], 0.05)
}

func TestAnisotropyStartsAxisAligned(t *testing.T) {
	tr := NewAnisotropy(3, 2, 1)
	x := mat.NewDense(1, 3, []float64{1, 2, 3})
	out := tr.Apply(x)
	require.Equal(t, 2, tr.OutputDim(3))
	require.InDelta(t, 1, out.At(0, 0), 1e-12)
	require.InDelta(t, 2, out.At(0, 1), 1e-12)
}

func TestAnisotropyRangeScaling(t *testing.T) {
	tr := NewAnisotropy(2, 2, 4)
	x := mat.NewDense(1, 2, []float64{4, 8})
	out := tr.Apply(x)
	require.InDelta(t, 1, out.At(0, 0), 1e-12)
	require.InDelta(t, 2, out.At(0, 1), 1e-12)

	require.Panics(t, func() { NewAnisotropy(2, 3, 1) })
	require.Panics(t, func() { tr.Apply(mat.NewDense(1, 3, nil)) })
}
