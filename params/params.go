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

// Package params implements bounded, constrained trainable parameters and the
// registry used by optimizers to collect them.
//
// A Param stores its raw values in a transformed space — identity for plain
// reals, log for positive quantities, zero-mean logits for compositional
// (simplex) vectors — together with transformed min/max bounds of the same
// shape. Refresh re-projects the raw values into the feasible region: it
// clamps bounded kinds, wraps circular kinds modulo their range, and
// renormalizes unit-column-norm kinds. Refresh must be called after any
// external write so downstream computations never see an infeasible value;
// it is idempotent (up to floating-point norm guards).
//
// Shapes are kept explicitly and values are stored flat in row-major order,
// so a Param can be a scalar, vector, matrix or rank-3 array without separate
// types per rank.
package params

import (
	"fmt"
	"math"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/rand"
)

// Param is a trainable array-valued parameter in a transformed space.
//
// The Fixed flag applies to the whole array: fixed parameters are skipped by
// Set.TrainableValues and therefore never touched by an optimizer.
type Param struct {
	name  string
	fixed bool

	shape []int
	// value, minT and maxT live in the transformed space.
	value, minT, maxT []float64

	kind kind
}

// kind gives each parameter flavor its transform pair and feasibility
// projection. The closed set of kinds mirrors the closed set of constraints
// the latent network needs.
type kind interface {
	transform(p *Param, natural []float64) []float64
	backTransform(p *Param, transformed []float64) []float64
	refresh(p *Param)
}

func numElements(shape []int) int {
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			exceptions.Panicf("params: invalid dimension %d in shape %v", dim, shape)
		}
		n *= dim
	}
	return n
}

func newParam(name string, k kind, shape []int, value, minVal, maxVal []float64) *Param {
	n := numElements(shape)
	if len(value) != n {
		exceptions.Panicf("params.%s: value has %d elements, shape %v wants %d",
			name, len(value), shape, n)
	}
	if len(minVal) != n || len(maxVal) != n {
		exceptions.Panicf("params.%s: bounds have %d/%d elements, shape %v wants %d",
			name, len(minVal), len(maxVal), shape, n)
	}
	p := &Param{
		name:  name,
		shape: append([]int(nil), shape...),
		kind:  k,
	}
	p.value = k.transform(p, value)
	p.minT = k.transform(p, minVal)
	p.maxT = k.transform(p, maxVal)
	p.Refresh()
	return p
}

// NewReal creates an unconstrained-in-shape real parameter clamped to
// [minVal, maxVal]. The three slices must have exactly len(shape) elements
// multiplied together.
func NewReal(name string, shape []int, value, minVal, maxVal []float64) *Param {
	return newParam(name, realKind{}, shape, value, minVal, maxVal)
}

// NewScalar is a convenience for a rank-0 real parameter.
func NewScalar(name string, value, minVal, maxVal float64) *Param {
	return NewReal(name, nil, []float64{value}, []float64{minVal}, []float64{maxVal})
}

// NewPositive creates a strictly positive parameter that travels in
// log-space. All values and bounds must be > 0.
func NewPositive(name string, shape []int, value, minVal, maxVal []float64) *Param {
	for i, v := range value {
		if v <= 0 || minVal[i] <= 0 || maxVal[i] <= 0 {
			exceptions.Panicf("params.%s: positive parameter needs positive values and bounds, "+
				"got value=%g min=%g max=%g at index %d", name, v, minVal[i], maxVal[i], i)
		}
	}
	return newParam(name, positiveKind{}, shape, value, minVal, maxVal)
}

// NewCompositional creates a simplex-valued vector parameter. It travels in
// zero-mean logit space and back-transforms through a softmax, so Value
// always sums to one. Transformed bounds are fixed at ±10.
func NewCompositional(name string, value []float64) *Param {
	n := len(value)
	p := &Param{
		name:  name,
		shape: []int{n},
		kind:  compositionalKind{},
	}
	p.value = p.kind.transform(p, value)
	p.minT = constants(n, -10)
	p.maxT = constants(n, 10)
	p.Refresh()
	return p
}

// NewCircular creates a parameter whose refresh wraps modulo [minVal, maxVal]
// instead of clamping. Used for angles.
func NewCircular(name string, shape []int, value, minVal, maxVal []float64) *Param {
	return newParam(name, circularKind{}, shape, value, minVal, maxVal)
}

// NewUnitColumnNorm creates a rows×cols matrix parameter whose columns are
// renormalized to unit Euclidean norm on every refresh. Bounds apply
// elementwise before normalization.
func NewUnitColumnNorm(name string, rows, cols int, value, minVal, maxVal []float64) *Param {
	return newParam(name, unitColumnNormKind{centered: false},
		[]int{rows, cols}, value, minVal, maxVal)
}

// NewCenteredUnitColumnNorm is like NewUnitColumnNorm but subtracts the
// per-row mean before normalizing, keeping each row centered.
func NewCenteredUnitColumnNorm(name string, rows, cols int, value, minVal, maxVal []float64) *Param {
	return newParam(name, unitColumnNormKind{centered: true},
		[]int{rows, cols}, value, minVal, maxVal)
}

// NewUnitColumnSum creates a rows×cols matrix parameter whose columns each
// form a simplex: values travel in per-column zero-mean logit space and
// back-transform through a per-column softmax.
func NewUnitColumnSum(name string, rows, cols int, value []float64) *Param {
	n := rows * cols
	if len(value) != n {
		exceptions.Panicf("params.%s: value has %d elements, want %d", name, len(value), n)
	}
	p := &Param{
		name:  name,
		shape: []int{rows, cols},
		kind:  unitColumnSumKind{},
	}
	p.value = p.kind.transform(p, value)
	p.minT = constants(n, -100)
	p.maxT = constants(n, 100)
	p.Refresh()
	return p
}

// Name returns the parameter's name, used for registry lookups and debugging.
func (p *Param) Name() string { return p.name }

// Shape returns the parameter's dimensions. A scalar has an empty shape.
func (p *Param) Shape() []int { return p.shape }

// NumElements returns the total number of scalar entries.
func (p *Param) NumElements() int { return len(p.value) }

// Fixed reports whether the parameter is excluded from optimization.
func (p *Param) Fixed() bool { return p.fixed }

// Fix excludes the parameter from optimization.
func (p *Param) Fix() { p.fixed = true }

// Unfix re-includes the parameter in optimization.
func (p *Param) Unfix() { p.fixed = false }

// Value returns a copy of the parameter in its natural (back-transformed)
// space, flattened row-major.
func (p *Param) Value() []float64 {
	return p.kind.backTransform(p, p.value)
}

// Scalar returns the natural-space value of a single-element parameter.
func (p *Param) Scalar() float64 {
	if len(p.value) != 1 {
		exceptions.Panicf("params.%s: Scalar called on parameter with %d elements",
			p.name, len(p.value))
	}
	return p.Value()[0]
}

// Transformed returns a copy of the raw, transformed-space values.
func (p *Param) Transformed() []float64 {
	return append([]float64(nil), p.value...)
}

// Bounds returns copies of the transformed-space min and max bounds.
func (p *Param) Bounds() (minT, maxT []float64) {
	return append([]float64(nil), p.minT...), append([]float64(nil), p.maxT...)
}

// SetValue writes v into the parameter, forward-transforming it unless
// transformed is true, then refreshes so the stored value is feasible.
func (p *Param) SetValue(v []float64, transformed bool) {
	if len(v) != len(p.value) {
		exceptions.Panicf("params.%s: SetValue with %d elements, want %d",
			p.name, len(v), len(p.value))
	}
	if transformed {
		copy(p.value, v)
	} else {
		copy(p.value, p.kind.transform(p, v))
	}
	p.Refresh()
}

// SetLimits replaces the natural-space bounds. A nil slice leaves the
// corresponding bound unchanged.
func (p *Param) SetLimits(minVal, maxVal []float64) {
	if minVal != nil {
		p.minT = p.kind.transform(p, minVal)
	}
	if maxVal != nil {
		p.maxT = p.kind.transform(p, maxVal)
	}
	p.Refresh()
}

// Refresh re-projects the raw values into the feasible region. It must be
// called after every external write (SetValue and Set.SetTrainableValues do
// it automatically) and is idempotent.
func (p *Param) Refresh() {
	p.kind.refresh(p)
}

// Randomize jiggles the parameter by up to ±5% of its bounded range in
// normalized transformed coordinates. Used for ensemble restarts.
func (p *Param) Randomize(rng *rand.Rand) {
	for i := range p.value {
		amp := p.maxT[i] - p.minT[i]
		if amp <= 0 {
			continue
		}
		rel := (p.value[i]-p.minT[i])/amp + rng.Float64()*0.1 - 0.05
		rel = math.Max(0, math.Min(1, rel))
		p.value[i] = p.minT[i] + rel*amp
	}
	p.Refresh()
}

func (p *Param) String() string {
	return fmt.Sprintf("Param(%s, shape=%v, fixed=%v)", p.name, p.shape, p.fixed)
}

func constants(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func clamp(p *Param) {
	for i, v := range p.value {
		p.value[i] = math.Max(p.minT[i], math.Min(p.maxT[i], v))
	}
}

type realKind struct{}

func (realKind) transform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (realKind) backTransform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (realKind) refresh(p *Param) { clamp(p) }

type positiveKind struct{}

func (positiveKind) transform(_ *Param, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Log(v)
	}
	return out
}
func (positiveKind) backTransform(_ *Param, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Exp(v)
	}
	return out
}
func (positiveKind) refresh(p *Param) { clamp(p) }

type compositionalKind struct{}

func (compositionalKind) transform(_ *Param, x []float64) []float64 {
	out := make([]float64, len(x))
	mean := 0.0
	for i, v := range x {
		out[i] = math.Log(v)
		mean += out[i]
	}
	mean /= float64(len(x))
	for i := range out {
		out[i] -= mean
	}
	return out
}
func (compositionalKind) backTransform(_ *Param, x []float64) []float64 {
	return softmax(x)
}
func (compositionalKind) refresh(p *Param) { clamp(p) }

type circularKind struct{}

func (circularKind) transform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (circularKind) backTransform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (circularKind) refresh(p *Param) {
	for i, v := range p.value {
		amp := p.maxT[i] - p.minT[i]
		if amp <= 0 {
			p.value[i] = p.minT[i]
			continue
		}
		laps := math.Floor((v - p.minT[i]) / amp)
		p.value[i] = v - laps*amp
	}
}

type unitColumnNormKind struct {
	centered bool
}

func (unitColumnNormKind) transform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (unitColumnNormKind) backTransform(_ *Param, x []float64) []float64 {
	return append([]float64(nil), x...)
}
func (k unitColumnNormKind) refresh(p *Param) {
	rows, cols := p.shape[0], p.shape[1]
	if k.centered {
		for i := 0; i < rows; i++ {
			mean := 0.0
			for j := 0; j < cols; j++ {
				mean += p.value[i*cols+j]
			}
			mean /= float64(cols)
			for j := 0; j < cols; j++ {
				p.value[i*cols+j] -= mean
			}
		}
	}
	for j := 0; j < cols; j++ {
		norm := 0.0
		for i := 0; i < rows; i++ {
			v := p.value[i*cols+j]
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm < 1e-12 {
			continue
		}
		for i := 0; i < rows; i++ {
			p.value[i*cols+j] /= norm
		}
	}
}

type unitColumnSumKind struct{}

func (unitColumnSumKind) transform(p *Param, x []float64) []float64 {
	rows, cols := p.shape[0], p.shape[1]
	out := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		mean := 0.0
		for i := 0; i < rows; i++ {
			out[i*cols+j] = math.Log(x[i*cols+j])
			mean += out[i*cols+j]
		}
		mean /= float64(rows)
		for i := 0; i < rows; i++ {
			out[i*cols+j] -= mean
		}
	}
	return out
}
func (unitColumnSumKind) backTransform(p *Param, x []float64) []float64 {
	rows, cols := p.shape[0], p.shape[1]
	out := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		for i := 0; i < rows; i++ {
			col[i] = x[i*cols+j]
		}
		col = softmax(col)
		for i := 0; i < rows; i++ {
			out[i*cols+j] = col[i]
		}
	}
	return out
}
func (unitColumnSumKind) refresh(p *Param) { clamp(p) }

func softmax(x []float64) []float64 {
	out := make([]float64, len(x))
	maxVal := math.Inf(-1)
	for _, v := range x {
		maxVal = math.Max(maxVal, v)
	}
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
