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
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/geogp/geogp/transforms"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// InputConfig configures a BasicInput. Create it with Input, chain the
// options and call Done.
type InputConfig struct {
	inducing          *pointset.Points
	transform         transforms.Transform
	trainableInducing bool
	fixTransform      bool
	centered          bool
}

// Input starts the configuration of the network's root node from the given
// inducing-point coordinates.
func Input(inducing *pointset.Points) *InputConfig {
	if inducing == nil || inducing.Len() == 0 {
		exceptions.Panicf("latent.Input: inducing point set is empty")
	}
	return &InputConfig{
		inducing:  inducing,
		transform: transforms.Identity{},
	}
}

// WithTransform sets the deterministic coordinate transform. Defaults to
// transforms.Identity.
func (c *InputConfig) WithTransform(t transforms.Transform) *InputConfig {
	c.transform = t
	return c
}

// TrainableInducingPoints lets the optimizer move the inducing-point
// coordinates within the data's bounding box. They are fixed by default.
func (c *InputConfig) TrainableInducingPoints() *InputConfig {
	c.trainableInducing = true
	return c
}

// FixTransform freezes the transform's parameters.
func (c *InputConfig) FixTransform() *InputConfig {
	c.fixTransform = true
	return c
}

// Centered subtracts the bounding-box center from all coordinates before
// the transform is applied.
func (c *InputConfig) Centered() *InputConfig {
	c.centered = true
	return c
}

// Done builds the BasicInput.
func (c *InputConfig) Done() *BasicInput {
	nIP := c.inducing.Len()
	d := c.inducing.NDim()
	size := c.transform.OutputDim(d)

	node := &BasicInput{
		baseNode:  newBaseNode(size, nil),
		transform: c.transform,
		nIP:       nIP,
		inputDim:  d,
		bounds:    c.inducing.Bounds(),
	}
	node.root = node

	if c.fixTransform {
		for _, p := range c.transform.AllParameters() {
			p.Fix()
		}
	}
	node.set.Register(c.transform)

	coords := c.inducing.Coordinates()
	flat := make([]float64, nIP*d)
	lo := make([]float64, nIP*d)
	hi := make([]float64, nIP*d)
	for i := 0; i < nIP; i++ {
		for j := 0; j < d; j++ {
			flat[i*d+j] = coords.At(i, j)
			lo[i*d+j] = node.bounds.Min[j]
			hi[i*d+j] = node.bounds.Max[j]
		}
	}
	ipParam := node.set.Add(params.NewReal("inducing_points", []int{nIP, d}, flat, lo, hi))
	if !c.trainableInducing {
		ipParam.Fix()
	}

	node.center = make([]float64, d)
	if c.centered {
		for j := 0; j < d; j++ {
			node.center[j] = 0.5 * (node.bounds.Min[j] + node.bounds.Max[j])
		}
	}

	node.inducingPointsVariance = zeros(nIP, size)
	return node
}

// BasicInput is the network's root: a deterministic coordinate transform
// plus the (optionally trainable) inducing-point coordinates every GP layer
// shares. It carries no uncertainty and no variational posterior.
type BasicInput struct {
	baseNode
	transform transforms.Transform
	nIP       int
	inputDim  int
	center    []float64
	bounds    pointset.BoundingBox
}

// NumInducing returns the number of inducing points of the network.
func (n *BasicInput) NumInducing() int { return n.nIP }

// InputDim returns the raw coordinate dimensionality.
func (n *BasicInput) InputDim() int { return n.inputDim }

// InducingCoordinates returns the current (raw, untransformed) inducing
// point coordinates as an nInducing×inputDim matrix.
func (n *BasicInput) InducingCoordinates() *mat.Dense {
	return mat.NewDense(n.nIP, n.inputDim, n.set.Get("inducing_points").Value())
}

func (n *BasicInput) UniqueParents() []Node { return nil }

func (n *BasicInput) SetParameterLimits(ps *pointset.Points) {
	n.transform.SetLimits(ps)
}

// recenter returns x − center.
func (n *BasicInput) recenter(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	if cols != n.inputDim {
		exceptions.Panicf("latent.BasicInput: coordinates have %d dims, root wants %d",
			cols, n.inputDim)
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, x.At(i, j)-n.center[j])
		}
	}
	return out
}

func (n *BasicInput) Refresh(jitter float64) {
	_ = jitter
	n.transform.Refresh()
	n.inducingPoints = n.transform.Apply(n.recenter(n.InducingCoordinates()))
}

func (n *BasicInput) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	_ = xVar // The transform is deterministic: the root never adds spread.
	tr := n.transform.Apply(n.recenter(x))
	return tr, zerosLike(tr)
}

func (n *BasicInput) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	_ = xVar
	_ = seed
	tr := transpose(n.transform.Apply(n.recenter(x)))
	return &Prediction{
		Mean:              tr,
		Variance:          zerosLike(tr),
		ExplainedVariance: zerosLike(tr),
		Simulations:       tileSims(tr, nSim),
	}
}

func (n *BasicInput) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	plus := n.transform.Apply(n.recenter(addScaled(x, step/2, dirX)))
	minus := n.transform.Apply(n.recenter(addScaled(x, -step/2, dirX)))
	diff := zerosLike(plus)
	diff.Sub(plus, minus)
	diff.Scale(1/step, diff)
	mu := transpose(diff)
	return &DirectionalPrediction{
		Mean:              mu,
		Variance:          zerosLike(mu),
		ExplainedVariance: zerosLike(mu),
	}
}

func (n *BasicInput) KLDivergence() float64 { return 0 }
