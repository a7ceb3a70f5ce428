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

// Package transforms provides deterministic, parameterized coordinate
// transforms applied by the network's input node.
//
// All transforms are affine in the coordinates, so symmetric central finite
// differences of a transform are exact regardless of step size — a property
// the directional-derivative machinery in the latent package relies on.
package transforms

import (
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Transform maps raw spatial coordinates into the network's base feature
// space. Implementations own their parameters.
type Transform interface {
	params.Owner

	// Apply returns the transformed coordinates as a new matrix.
	Apply(x *mat.Dense) *mat.Dense

	// OutputDim returns the feature dimensionality for a given input
	// dimensionality.
	OutputDim(inputDim int) int

	// Refresh re-projects the transform's parameters into feasibility.
	Refresh()

	// SetLimits adapts parameter bounds to the data's bounding box.
	SetLimits(ps *pointset.Points)
}

// Identity passes coordinates through unchanged.
type Identity struct{}

func (Identity) Apply(x *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(x)
	return out
}

func (Identity) OutputDim(inputDim int) int     { return inputDim }
func (Identity) Refresh()                       {}
func (Identity) SetLimits(*pointset.Points)     {}
func (Identity) AllParameters() []*params.Param { return nil }

// Isotropic scales all coordinates by a single trainable range: x / range.
type Isotropic struct {
	set *params.Set
}

// NewIsotropic creates an isotropic scaling transform with the given initial
// range. The bounds are provisional until SetLimits is called with data.
func NewIsotropic(rangeVal float64) *Isotropic {
	if rangeVal <= 0 {
		exceptions.Panicf("transforms.NewIsotropic: range must be positive, got %g", rangeVal)
	}
	t := &Isotropic{set: params.NewSet()}
	t.set.Add(params.NewPositive("range", nil,
		[]float64{rangeVal}, []float64{rangeVal / 100}, []float64{rangeVal * 100}))
	return t
}

func (t *Isotropic) Apply(x *mat.Dense) *mat.Dense {
	r := t.set.Get("range").Scalar()
	out := &mat.Dense{}
	out.Scale(1/r, x)
	return out
}

func (t *Isotropic) OutputDim(inputDim int) int { return inputDim }

func (t *Isotropic) Refresh() {
	t.set.Get("range").Refresh()
}

// SetLimits bounds the range by the data's bounding-box diagonal.
func (t *Isotropic) SetLimits(ps *pointset.Points) {
	diag := ps.Bounds().Diagonal()
	t.set.Get("range").SetLimits([]float64{diag / 100}, []float64{2 * diag})
}

func (t *Isotropic) AllParameters() []*params.Param { return t.set.All() }

// Anisotropy projects coordinates onto trainable unit-norm directions and
// scales each projection by its own range: (x · D) · diag(1/ranges).
type Anisotropy struct {
	set              *params.Set
	inputDim, outDim int
}

// NewAnisotropy creates an anisotropic transform from inputDim coordinates to
// outDim features. Directions start axis-aligned (or truncated identity when
// outDim < inputDim) and ranges start at rangeVal.
func NewAnisotropy(inputDim, outDim int, rangeVal float64) *Anisotropy {
	if outDim > inputDim {
		exceptions.Panicf("transforms.NewAnisotropy: outDim (%d) cannot exceed inputDim (%d)",
			outDim, inputDim)
	}
	if rangeVal <= 0 {
		exceptions.Panicf("transforms.NewAnisotropy: range must be positive, got %g", rangeVal)
	}
	t := &Anisotropy{
		set:      params.NewSet(),
		inputDim: inputDim,
		outDim:   outDim,
	}

	dirs := make([]float64, inputDim*outDim)
	for j := 0; j < outDim; j++ {
		dirs[j*outDim+j] = 1
	}
	lo := make([]float64, inputDim*outDim)
	hi := make([]float64, inputDim*outDim)
	for i := range lo {
		lo[i], hi[i] = -1, 1
	}
	t.set.Add(params.NewUnitColumnNorm("directions", inputDim, outDim, dirs, lo, hi))

	ranges := make([]float64, outDim)
	rLo := make([]float64, outDim)
	rHi := make([]float64, outDim)
	for i := range ranges {
		ranges[i] = rangeVal
		rLo[i] = rangeVal / 100
		rHi[i] = rangeVal * 100
	}
	t.set.Add(params.NewPositive("ranges", []int{outDim}, ranges, rLo, rHi))
	return t
}

func (t *Anisotropy) Apply(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	if d != t.inputDim {
		exceptions.Panicf("transforms.Anisotropy: input has %d dims, transform wants %d",
			d, t.inputDim)
	}
	dirs := mat.NewDense(t.inputDim, t.outDim, t.set.Get("directions").Value())
	ranges := t.set.Get("ranges").Value()

	out := mat.NewDense(n, t.outDim, nil)
	out.Mul(x, dirs)
	for j := 0; j < t.outDim; j++ {
		for i := 0; i < n; i++ {
			out.Set(i, j, out.At(i, j)/ranges[j])
		}
	}
	return out
}

func (t *Anisotropy) OutputDim(int) int { return t.outDim }

func (t *Anisotropy) Refresh() {
	for _, p := range t.set.All() {
		p.Refresh()
	}
}

// SetLimits bounds each range by the data's bounding-box diagonal.
func (t *Anisotropy) SetLimits(ps *pointset.Points) {
	diag := ps.Bounds().Diagonal()
	lo := make([]float64, t.outDim)
	hi := make([]float64, t.outDim)
	for i := range lo {
		lo[i], hi[i] = diag/100, 2*diag
	}
	t.set.Get("ranges").SetLimits(lo, hi)
}

func (t *Anisotropy) AllParameters() []*params.Param { return t.set.All() }
