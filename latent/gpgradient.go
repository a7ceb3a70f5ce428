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

	"github.com/geogp/geogp/kernels"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// GPWithGradientConfig configures a GPWithGradient. Create it with
// GPWithGrad, chain the options and call Done.
type GPWithGradientConfig struct {
	parent Node
	size   int
	kernel kernels.Kernel
}

// GPWithGrad starts the configuration of a gradient-augmented sparse GP
// layer on top of parent.
func GPWithGrad(parent Node) *GPWithGradientConfig {
	if parent == nil {
		exceptions.Panicf("latent.GPWithGrad: parent is nil")
	}
	return &GPWithGradientConfig{parent: parent, size: 1, kernel: kernels.Gaussian{}}
}

// WithSize sets the number of independent output dimensions. Defaults to 1.
func (c *GPWithGradientConfig) WithSize(size int) *GPWithGradientConfig {
	if size < 1 {
		exceptions.Panicf("latent.GPWithGrad: size must be positive, got %d", size)
	}
	c.size = size
	return c
}

// WithKernel sets the stationary kernel. Defaults to kernels.Gaussian.
func (c *GPWithGradientConfig) WithKernel(k kernels.Kernel) *GPWithGradientConfig {
	c.kernel = k
	return c
}

// Done builds the GPWithGradient.
func (c *GPWithGradientConfig) Done() *GPWithGradient {
	node := &GPWithGradient{
		baseNode: newBaseNode(c.size, c.parent.Root(), c.parent),
		kernel:   c.kernel,
	}
	c.parent.addChild(node)
	root := node.root
	nIP := root.NumInducing()
	augmented := nIP * (root.InputDim() + 1)
	addGPParameters(node.set, c.size, augmented, nIP, c.parent.Size())
	return node
}

// GPWithGradient is a sparse variational GP whose inducing set is augmented
// with the per-dimension directional derivatives at every inducing point.
// The joint prior is the block matrix [[C, Cd1], [Cd1ᵗ, Cd2]] with the
// derivative blocks built by the same central finite differences used for
// prediction; every downstream formula (Cholesky, smoothing, alpha, KL)
// operates on the augmented matrix unchanged.
type GPWithGradient struct {
	baseNode
	kernel kernels.Kernel

	cov     *mat.Dense
	covChol *mat.Dense
	covInv  *mat.Dense

	covSmoothInv    []*mat.Dense
	covSmoothLogDet []float64
	cholR           []*mat.Dense
	alpha           []*mat.VecDense
}

func (g *GPWithGradient) parent() Node { return g.parents[0] }

func (g *GPWithGradient) cm() covarianceModel {
	return covarianceModel{kernel: g.kernel, ranges: g.set.Get("ranges")}
}

func (g *GPWithGradient) UniqueParents() []Node { return uniqueParents(g) }

func (g *GPWithGradient) SetParameterLimits(ps *pointset.Points) {
	g.parent().SetParameterLimits(ps)
}

// inducingDirections builds the stacked raw inducing coordinates (one block
// per coordinate dimension) and the matching standard-basis direction rows:
// block k of the result pairs every inducing point with direction e_k.
func (g *GPWithGradient) inducingDirections() (stacked, directions *mat.Dense) {
	root := g.root
	raw := root.InducingCoordinates()
	nIP, d := raw.Dims()
	stacked = tileRows(raw, d)
	directions = zeros(nIP*d, d)
	for k := 0; k < d; k++ {
		for i := 0; i < nIP; i++ {
			directions.Set(k*nIP+i, k, 1)
		}
	}
	return stacked, directions
}

// crossD2 is the double central finite difference: covariance between
// directional derivatives at (y, dirY) and the inducing-point derivatives.
// Shape n×(nInducing·inputDim).
func (g *GPWithGradient) crossD2(y, dirY *mat.Dense, step float64) *mat.Dense {
	parent := g.parent()
	cm := g.cm()
	stacked, ipDir := g.inducingDirections()

	ipPlus, ipVarPlus := parent.Propagate(addScaled(stacked, step/2, ipDir), nil)
	ipMinus, ipVarMinus := parent.Propagate(addScaled(stacked, -step/2, ipDir), nil)

	yPlus, yVarPlus := parent.Propagate(addScaled(y, step/2, dirY), nil)
	yMinus, yVarMinus := parent.Propagate(addScaled(y, -step/2, dirY), nil)

	diff := func(a, b *mat.Dense) *mat.Dense {
		out := zerosLike(a)
		out.Sub(a, b)
		out.Scale(1/step, out)
		return out
	}

	cov1 := diff(
		cm.matrix(yPlus, ipPlus, yVarPlus, ipVarPlus),
		cm.matrix(yMinus, ipPlus, yVarMinus, ipVarPlus))
	cov2 := diff(
		cm.matrix(yPlus, ipMinus, yVarPlus, ipVarMinus),
		cm.matrix(yMinus, ipMinus, yVarMinus, ipVarMinus))
	return diff(cov1, cov2)
}

// crossD1Rev is the covariance between plain query points and the
// inducing-point derivatives. Shape n×(nInducing·inputDim).
func (g *GPWithGradient) crossD1Rev(x, xVar *mat.Dense, step float64) *mat.Dense {
	parent := g.parent()
	cm := g.cm()
	stacked, ipDir := g.inducingDirections()

	ipPlus, ipVarPlus := parent.Propagate(addScaled(stacked, step/2, ipDir), nil)
	ipMinus, ipVarMinus := parent.Propagate(addScaled(stacked, -step/2, ipDir), nil)

	y, yVar := parent.Propagate(x, xVar)
	out := zerosLike(cm.matrix(y, ipPlus, yVar, ipVarPlus))
	out.Sub(cm.matrix(y, ipPlus, yVar, ipVarPlus), cm.matrix(y, ipMinus, yVar, ipVarMinus))
	out.Scale(1/step, out)
	return out
}

func (g *GPWithGradient) Refresh(jitter float64) {
	refreshParents(g, jitter)
	parent := g.parent()
	root := g.root
	ip := parent.InducingPoints()
	ipVar := parent.InducingPointsVariance()
	nIP := root.NumInducing()
	d := root.InputDim()
	m := nIP * (d + 1)

	cm := g.cm()
	stacked, ipDir := g.inducingDirections()

	baseCov := cm.matrix(ip, ip, ipVar, ipVar)
	covD1 := cm.crossD1(parent, stacked, ipDir, nil, DefaultStep)
	covD2 := g.crossD2(stacked, ipDir, DefaultStep)

	cov := concatRows(
		concatCols(baseCov, covD1),
		concatCols(transpose(covD1), covD2))

	chol := choleskyOrDie("augmented prior covariance", cov, jitter)
	g.cov = cov
	g.covChol = lowerFactor(chol)
	g.covInv = cholSolveIdentity(chol)

	delta := g.set.Get("delta").Value()
	alphaWhite := g.set.Get("alpha_white").Value()

	g.covSmoothInv = make([]*mat.Dense, g.size)
	g.covSmoothLogDet = make([]float64, g.size)
	g.cholR = make([]*mat.Dense, g.size)
	g.alpha = make([]*mat.VecDense, g.size)
	g.inducingPoints = zeros(nIP, g.size)
	g.inducingPointsVariance = zeros(nIP, g.size)

	for s := 0; s < g.size; s++ {
		// The gradient block carries no slack: delta only smooths the
		// value block.
		covSmooth := clone(cov)
		for i := 0; i < nIP; i++ {
			covSmooth.Set(i, i, covSmooth.At(i, i)+delta[s*nIP+i])
		}
		smoothChol := choleskyOrDie("augmented smoothed covariance", covSmooth, jitter)
		g.covSmoothInv[s] = cholSolveIdentity(smoothChol)
		g.covSmoothLogDet[s] = smoothChol.LogDet()

		residual := zerosLike(cov)
		residual.Sub(g.covInv, g.covSmoothInv[s])
		g.cholR[s] = lowerFactor(choleskyOrDie("augmented residual factor", residual, jitter))

		aw := mat.NewVecDense(m, alphaWhite[s*m:(s+1)*m])
		predInputs := mulVec(g.covChol, aw)
		g.alpha[s] = mulVec(g.covInv, predInputs)

		explained := rowDot(matMul(cov, g.covSmoothInv[s]), cov)
		for i := 0; i < nIP; i++ {
			g.inducingPoints.Set(i, s, predInputs.AtVec(i))
			g.inducingPointsVariance.Set(i, s, 1-explained[i])
		}
	}
}

func (g *GPWithGradient) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	parent := g.parent()
	xp, xpVar := parent.Propagate(x, xVar)
	cov1 := g.cm().matrix(xp, parent.InducingPoints(), xpVar, parent.InducingPointsVariance())
	cov2 := g.crossD1Rev(x, xVar, DefaultStep)
	cross := concatCols(cov1, cov2)
	return gpPredictFromCross(g.size, g.alpha, g.covSmoothInv, g.cholR, cross, nSim, seed)
}

func (g *GPWithGradient) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	cm := g.cm()
	cov1 := transpose(cm.crossD1(g.parent(), x, dirX, nil, step))
	cov2 := g.crossD2(x, dirX, step)
	cross := concatCols(cov1, cov2)
	n, _ := cross.Dims()

	out := &DirectionalPrediction{
		Mean:              zeros(g.size, n),
		Variance:          zeros(g.size, n),
		ExplainedVariance: zeros(g.size, n),
	}
	pointVar := cm.pointVarianceD2(g.parent(), x, dirX, step, g.size)
	for s := 0; s < g.size; s++ {
		mu := mulVec(cross, g.alpha[s])
		explained := rowDot(matMul(cross, g.covSmoothInv[s]), cross)
		for i := 0; i < n; i++ {
			out.Mean.Set(s, i, mu.AtVec(i))
			out.ExplainedVariance.Set(s, i, explained[i])
			out.Variance.Set(s, i, math.Max(pointVar.At(s, i)-explained[i], 0))
		}
	}
	return out
}

func (g *GPWithGradient) KLDivergence() float64 {
	if g.cov == nil {
		exceptions.Panicf("latent.GPWithGradient: KLDivergence before Refresh")
	}
	return gpKL(g.cov, g.covSmoothInv, g.covSmoothLogDet,
		g.set.Get("alpha_white").Value(), g.set.Get("delta").Transformed())
}

func (g *GPWithGradient) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(g, x, xVar)
}

// Gradient wraps this GP's directional derivative field as a node of size
// size×inputDim.
func (g *GPWithGradient) Gradient() *GPGradient {
	return newGPGradient(g)
}

// GPGradient exposes a GP node's per-input-dimension directional derivative
// field as a first-class node of size parentSize×inputDim, one standard
// basis direction per block of output dimensions. It owns no variational
// posterior: its KL contribution is zero.
type GPGradient struct {
	baseNode
}

func newGPGradient(parent Node) *GPGradient {
	root := parent.Root()
	node := &GPGradient{
		baseNode: newBaseNode(parent.Size()*root.InputDim(), root, parent),
	}
	parent.addChild(node)
	return node
}

func (g *GPGradient) parent() Node { return g.parents[0] }

func (g *GPGradient) UniqueParents() []Node { return uniqueParents(g) }

func (g *GPGradient) SetParameterLimits(ps *pointset.Points) {
	g.parent().SetParameterLimits(ps)
}

// basisDirections returns an n×d direction matrix with every row set to the
// k-th standard basis vector.
func (g *GPGradient) basisDirections(n, k int) *mat.Dense {
	d := g.root.InputDim()
	out := zeros(n, d)
	for i := 0; i < n; i++ {
		out.Set(i, k, 1)
	}
	return out
}

func (g *GPGradient) Refresh(jitter float64) {
	refreshParents(g, jitter)
	raw := g.root.InducingCoordinates()
	nIP, d := raw.Dims()
	parentSize := g.parent().Size()

	g.inducingPoints = zeros(nIP, g.size)
	g.inducingPointsVariance = zeros(nIP, g.size)
	for k := 0; k < d; k++ {
		dp := g.parent().PredictDirections(raw, g.basisDirections(nIP, k), DefaultStep)
		for s := 0; s < parentSize; s++ {
			for i := 0; i < nIP; i++ {
				g.inducingPoints.Set(i, k*parentSize+s, dp.Mean.At(s, i))
				g.inducingPointsVariance.Set(i, k*parentSize+s, dp.Variance.At(s, i))
			}
		}
	}
}

func (g *GPGradient) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	_ = xVar
	_ = seed
	n, _ := x.Dims()
	d := g.root.InputDim()

	var means, vars, explained []*mat.Dense
	for k := 0; k < d; k++ {
		dp := g.parent().PredictDirections(x, g.basisDirections(n, k), DefaultStep)
		means = append(means, dp.Mean)
		vars = append(vars, dp.Variance)
		explained = append(explained, dp.ExplainedVariance)
	}
	mean := concatRows(means...)
	return &Prediction{
		Mean:              mean,
		Variance:          concatRows(vars...),
		ExplainedVariance: concatRows(explained...),
		Simulations:       tileSims(mean, nSim),
	}
}

func (g *GPGradient) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	exceptions.Panicf("latent.GPGradient: directional derivatives of a gradient field are not supported")
	return nil
}

func (g *GPGradient) KLDivergence() float64 { return 0 }

func (g *GPGradient) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(g, x, xVar)
}
