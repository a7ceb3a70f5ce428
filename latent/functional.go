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
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// functionalNode is the scaffolding shared by single-parent wrappers that
// own no variational posterior.
type functionalNode struct {
	baseNode
}

func newFunctionalNode(size int, parent Node) functionalNode {
	return functionalNode{baseNode: newBaseNode(size, parent.Root(), parent)}
}

func (f *functionalNode) parent() Node { return f.parents[0] }

func (f *functionalNode) UniqueParents() []Node { return uniqueAncestors(f.parents) }

func (f *functionalNode) SetParameterLimits(ps *pointset.Points) {
	f.parent().SetParameterLimits(ps)
}

func (f *functionalNode) KLDivergence() float64 { return 0 }

// LinearConfig configures a Linear node. Create it with Lin, chain the
// options and call Done.
type LinearConfig struct {
	parent   Node
	size     int
	unitNorm bool
}

// Lin starts the configuration of a linear map over parent.
func Lin(parent Node) *LinearConfig {
	if parent == nil {
		exceptions.Panicf("latent.Lin: parent is nil")
	}
	return &LinearConfig{parent: parent, size: 1, unitNorm: true}
}

// WithSize sets the output dimensionality. Defaults to 1.
func (c *LinearConfig) WithSize(size int) *LinearConfig {
	if size < 1 {
		exceptions.Panicf("latent.Lin: size must be positive, got %d", size)
	}
	c.size = size
	return c
}

// FreeWeights drops the unit-column-norm constraint, leaving the weights as
// plain bounded reals.
func (c *LinearConfig) FreeWeights() *LinearConfig {
	c.unitNorm = false
	return c
}

// Done builds the Linear node.
func (c *LinearConfig) Done() *Linear {
	node := &Linear{functionalNode: newFunctionalNode(c.size, c.parent)}
	c.parent.addChild(node)

	rows, cols := c.parent.Size(), c.size
	if c.unitNorm {
		rng := rand.New(rand.NewSource(0xBB67AE8584CAA73B))
		init := make([]float64, rows*cols)
		for i := range init {
			init[i] = rng.NormFloat64()
		}
		node.set.Add(params.NewUnitColumnNorm("weights", rows, cols,
			init, constants(rows*cols, -1), constants(rows*cols, 1)))
	} else {
		node.set.Add(params.NewReal("weights", []int{rows, cols},
			constants(rows*cols, 1), constants(rows*cols, -15), constants(rows*cols, 15)))
	}

	// The two-class discriminant over a single latent field is fully
	// determined up to scale.
	if rows == 1 && cols == 2 {
		w := node.set.Get("weights")
		w.SetValue([]float64{1, -1}, false)
		w.Fix()
	}
	return node
}

// Linear maps a parent node through a trainable weight matrix: means
// combine linearly and variances through the squared weights, treating the
// parent dimensions as independent.
type Linear struct {
	functionalNode
}

func (l *Linear) weightMatrix() *mat.Dense {
	w := l.set.Get("weights")
	shape := w.Shape()
	return mat.NewDense(shape[0], shape[1], w.Value())
}

func (l *Linear) Refresh(jitter float64) {
	refreshParents(l, jitter)
	p := l.parent()
	if p.InducingPoints() == nil {
		return
	}
	w := l.weightMatrix()
	wSq := zerosLike(w)
	wSq.MulElem(w, w)
	l.inducingPoints = matMul(p.InducingPoints(), w)
	l.inducingPointsVariance = matMul(p.InducingPointsVariance(), wSq)
}

func (l *Linear) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	pred := l.parent().Predict(x, xVar, nSim, seed)
	w := l.weightMatrix()
	wT := transpose(w)
	wSqT := zerosLike(wT)
	wSqT.MulElem(wT, wT)

	out := &Prediction{
		Mean:              matMul(wT, pred.Mean),
		Variance:          matMul(wSqT, pred.Variance),
		ExplainedVariance: matMul(wSqT, pred.ExplainedVariance),
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := range pred.Simulations {
			out.Simulations[k] = matMul(wT, pred.Simulations[k])
		}
	}
	return out
}

func (l *Linear) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	dp := l.parent().PredictDirections(x, dirX, step)
	w := l.weightMatrix()
	wT := transpose(w)
	wSqT := zerosLike(wT)
	wSqT.MulElem(wT, wT)
	return &DirectionalPrediction{
		Mean:              matMul(wT, dp.Mean),
		Variance:          matMul(wSqT, dp.Variance),
		ExplainedVariance: matMul(wSqT, dp.ExplainedVariance),
	}
}

func (l *Linear) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(l, x, xVar)
}

// SelectInput exposes a subset of the parent's output dimensions. It is
// deterministic given the parent moments, so simulations are copies of the
// mean.
type SelectInput struct {
	functionalNode
	columns []int
}

func NewSelectInput(parent Node, columns []int) *SelectInput {
	if len(columns) == 0 {
		exceptions.Panicf("latent.NewSelectInput: columns must not be empty")
	}
	for _, c := range columns {
		if c < 0 || c >= parent.Size() {
			exceptions.Panicf("latent.NewSelectInput: column %d out of range [0, %d)",
				c, parent.Size())
		}
	}
	node := &SelectInput{
		functionalNode: newFunctionalNode(len(columns), parent),
		columns:        append([]int(nil), columns...),
	}
	parent.addChild(node)
	return node
}

func (s *SelectInput) Refresh(jitter float64) {
	refreshParents(s, jitter)
	p := s.parent()
	if p.InducingPoints() == nil {
		return
	}
	s.inducingPoints = gatherCols(p.InducingPoints(), s.columns)
	s.inducingPointsVariance = gatherCols(p.InducingPointsVariance(), s.columns)
}

func (s *SelectInput) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	_ = seed
	mean, variance := s.Propagate(x, xVar)
	out := &Prediction{
		Mean:              transpose(mean),
		Variance:          transpose(variance),
		ExplainedVariance: zeros(s.size, firstDim(x)),
	}
	out.Simulations = tileSims(out.Mean, nSim)
	return out
}

func (s *SelectInput) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	dp := s.parent().PredictDirections(x, dirX, step)
	rows := func(m *mat.Dense) *mat.Dense { return transpose(gatherCols(transpose(m), s.columns)) }
	return &DirectionalPrediction{
		Mean:              rows(dp.Mean),
		Variance:          rows(dp.Variance),
		ExplainedVariance: rows(dp.ExplainedVariance),
	}
}

func (s *SelectInput) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	m, v := s.parent().Propagate(x, xVar)
	return gatherCols(m, s.columns), gatherCols(v, s.columns)
}

// Bias shifts every output dimension of the parent by a trainable offset.
type Bias struct {
	functionalNode
}

func NewBias(parent Node, scale float64) *Bias {
	if scale <= 0 {
		exceptions.Panicf("latent.NewBias: scale must be positive, got %g", scale)
	}
	node := &Bias{functionalNode: newFunctionalNode(parent.Size(), parent)}
	parent.addChild(node)
	size := node.size
	node.set.Add(params.NewReal("bias", []int{size},
		constants(size, 0), constants(size, -scale), constants(size, scale)))
	return node
}

func (b *Bias) bias() []float64 { return b.set.Get("bias").Value() }

func (b *Bias) Refresh(jitter float64) {
	refreshParents(b, jitter)
	p := b.parent()
	if p.InducingPoints() == nil {
		return
	}
	bias := b.bias()
	ip := clone(p.InducingPoints())
	nIP, _ := ip.Dims()
	for s := 0; s < b.size; s++ {
		for i := 0; i < nIP; i++ {
			ip.Set(i, s, ip.At(i, s)+bias[s])
		}
	}
	b.inducingPoints = ip
	b.inducingPointsVariance = clone(p.InducingPointsVariance())
}

func (b *Bias) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	pred := b.parent().Predict(x, xVar, nSim, seed)
	bias := b.bias()
	n := firstDim(x)
	mean := clone(pred.Mean)
	for s := 0; s < b.size; s++ {
		for i := 0; i < n; i++ {
			mean.Set(s, i, mean.At(s, i)+bias[s])
		}
	}
	out := &Prediction{
		Mean:              mean,
		Variance:          pred.Variance,
		ExplainedVariance: pred.ExplainedVariance,
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := range pred.Simulations {
			sim := clone(pred.Simulations[k])
			for s := 0; s < b.size; s++ {
				for i := 0; i < n; i++ {
					sim.Set(s, i, sim.At(s, i)+bias[s])
				}
			}
			out.Simulations[k] = sim
		}
	}
	return out
}

// PredictDirections passes through: a constant shift has zero derivative.
func (b *Bias) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	return b.parent().PredictDirections(x, dirX, step)
}

func (b *Bias) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(b, x, xVar)
}

// Exponentiation wraps the parent field in a lognormal amplitude: the
// parent is first standardized through a trainable mean and scale and the
// output moments follow the second-order lognormal expansion.
type Exponentiation struct {
	functionalNode
}

func NewExponentiation(parent Node) *Exponentiation {
	node := &Exponentiation{functionalNode: newFunctionalNode(parent.Size(), parent)}
	parent.addChild(node)
	node.set.Add(params.NewScalar("amp_mean", 0, -5, 5))
	node.set.Add(params.NewPositive("amp_scale", []int{1},
		[]float64{0.25}, []float64{0.01}, []float64{10}))
	return node
}

func (e *Exponentiation) amplitude() (mean, scale float64) {
	return e.set.Get("amp_mean").Scalar(), e.set.Get("amp_scale").Scalar()
}

// ampMoments maps standardized moments (mu, v) plus extra variance to the
// lognormal mean/variance expansion used throughout the node.
func ampMoments(mu, v float64) (ampMu, ampVar float64) {
	ampMu = math.Exp(mu) * (1 + 0.5*v)
	ampVar = math.Exp(2*mu) * v * (1 + v)
	return ampMu, ampVar
}

func (e *Exponentiation) Refresh(jitter float64) {
	refreshParents(e, jitter)
	p := e.parent()
	if p.InducingPoints() == nil {
		return
	}
	ampMean, ampScale := e.amplitude()
	sqrtScale := math.Sqrt(ampScale)
	ip := p.InducingPoints()
	ipVar := p.InducingPointsVariance()
	nIP, _ := ip.Dims()
	e.inducingPoints = zeros(nIP, e.size)
	e.inducingPointsVariance = zeros(nIP, e.size)
	for s := 0; s < e.size; s++ {
		for i := 0; i < nIP; i++ {
			mu := ip.At(i, s)*sqrtScale + ampMean
			v := ipVar.At(i, s) * ampScale
			ampMu, ampVar := ampMoments(mu, v)
			e.inducingPoints.Set(i, s, ampMu)
			e.inducingPointsVariance.Set(i, s, ampVar)
		}
	}
}

func (e *Exponentiation) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	pred := e.parent().Predict(x, xVar, nSim, seed)
	ampMean, ampScale := e.amplitude()
	sqrtScale := math.Sqrt(ampScale)
	n := firstDim(x)

	out := &Prediction{
		Mean:              zeros(e.size, n),
		Variance:          zeros(e.size, n),
		ExplainedVariance: zeros(e.size, n),
	}
	for s := 0; s < e.size; s++ {
		for i := 0; i < n; i++ {
			mu := pred.Mean.At(s, i)*sqrtScale + ampMean
			v := pred.Variance.At(s, i) * ampScale
			ev := pred.ExplainedVariance.At(s, i) * ampScale
			ampMu, ampVar := ampMoments(mu, v)
			_, ampTotal := ampMoments(mu, v+ev)
			out.Mean.Set(s, i, ampMu)
			out.Variance.Set(s, i, ampVar)
			out.ExplainedVariance.Set(s, i, ampTotal-ampVar)
		}
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := range pred.Simulations {
			sim := zeros(e.size, n)
			for s := 0; s < e.size; s++ {
				for i := 0; i < n; i++ {
					sim.Set(s, i, math.Exp(pred.Simulations[k].At(s, i)*sqrtScale+ampMean))
				}
			}
			out.Simulations[k] = sim
		}
	}
	return out
}

func (e *Exponentiation) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	dp := e.parent().PredictDirections(x, dirX, step)
	ampMean, ampScale := e.amplitude()
	sqrtScale := math.Sqrt(ampScale)
	rows, cols := dp.Mean.Dims()
	out := &DirectionalPrediction{
		Mean:              zeros(rows, cols),
		Variance:          zeros(rows, cols),
		ExplainedVariance: zeros(rows, cols),
	}
	for s := 0; s < rows; s++ {
		for i := 0; i < cols; i++ {
			mu := dp.Mean.At(s, i)*sqrtScale + ampMean
			v := dp.Variance.At(s, i) * ampScale
			ev := dp.ExplainedVariance.At(s, i) * ampScale
			ampMu, ampVar := ampMoments(mu, v)
			_, ampTotal := ampMoments(mu, v+ev)
			out.Mean.Set(s, i, ampMu)
			out.Variance.Set(s, i, ampVar)
			out.ExplainedVariance.Set(s, i, ampTotal-ampVar)
		}
	}
	return out
}

func (e *Exponentiation) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(e, x, xVar)
}

// RadialTrend maps the parent field through a compactly supported radial
// basis around trainable centers: quadratic decay inside the unit radius, a
// matching quadratic tail up to twice the radius and zero beyond. The
// output is deterministic given the parent mean.
type RadialTrend struct {
	functionalNode
}

func NewRadialTrend(parent Node, size int) *RadialTrend {
	if size < 1 {
		exceptions.Panicf("latent.NewRadialTrend: size must be positive, got %d", size)
	}
	node := &RadialTrend{functionalNode: newFunctionalNode(size, parent)}
	parent.addChild(node)
	parentSize := parent.Size()
	node.set.Add(params.NewPositive("scale", []int{1, size},
		constants(size, 1), constants(size, 0.1), constants(size, 10)))
	node.set.Add(params.NewReal("center", []int{parentSize, 1, size},
		constants(parentSize*size, 0), constants(parentSize*size, -5), constants(parentSize*size, 5)))
	return node
}

// computeTrend evaluates the radial basis at a parentSize×n field,
// returning a size×n matrix.
func (r *RadialTrend) computeTrend(field *mat.Dense) *mat.Dense {
	scale := r.set.Get("scale").Value()
	center := r.set.Get("center").Value()
	parentSize, n := field.Dims()

	out := zeros(r.size, n)
	for s := 0; s < r.size; s++ {
		for i := 0; i < n; i++ {
			distSq := 1e-12
			for k := 0; k < parentSize; k++ {
				dif := field.At(k, i) - center[k*r.size+s]
				distSq += dif * dif
			}
			d := math.Sqrt(distSq) / scale[s]
			var trend float64
			switch {
			case d < 1:
				trend = 1 - d*d
			case d < 2:
				trend = d*d - 4*d + 3
			}
			out.Set(s, i, trend)
		}
	}
	return out
}

func (r *RadialTrend) Refresh(jitter float64) {
	refreshParents(r, jitter)
	p := r.parent()
	if p.InducingPoints() == nil {
		return
	}
	r.inducingPoints = transpose(r.computeTrend(transpose(p.InducingPoints())))
	r.inducingPointsVariance = zerosLike(r.inducingPoints)
}

func (r *RadialTrend) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	pred := r.parent().Predict(x, xVar, 0, seed)
	mean := r.computeTrend(pred.Mean)
	return &Prediction{
		Mean:              mean,
		Variance:          zerosLike(mean),
		ExplainedVariance: zerosLike(mean),
		Simulations:       tileSims(mean, nSim),
	}
}

// PredictDirections differentiates the trend along the parent's mean path
// with the same central step used everywhere else.
func (r *RadialTrend) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	p := r.parent()
	muPlus, _ := p.Propagate(addScaled(x, step/2, dirX), nil)
	muMinus, _ := p.Propagate(addScaled(x, -step/2, dirX), nil)

	trendPlus := r.computeTrend(transpose(muPlus))
	trendMinus := r.computeTrend(transpose(muMinus))

	mean := zerosLike(trendPlus)
	mean.Sub(trendPlus, trendMinus)
	mean.Scale(1/step, mean)
	return &DirectionalPrediction{
		Mean:              mean,
		Variance:          zerosLike(mean),
		ExplainedVariance: zerosLike(mean),
	}
}

func (r *RadialTrend) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(r, x, xVar)
}

// CopyGP replays a trained BasicGP posterior on top of a different parent:
// the source's inducing posterior, smoothing and residual factors are
// frozen at construction and only the new parent's propagation varies.
// Useful for transferring a field fitted in one region onto another
// network without retraining it.
type CopyGP struct {
	functionalNode
	kernel kernels.Kernel
	ranges *params.Param

	srcIP        *mat.Dense
	srcIPVar     *mat.Dense
	srcSmoothInv []*mat.Dense
	srcCholR     []*mat.Dense
	srcAlpha     []*mat.VecDense
}

func NewCopyGP(parent Node, source *BasicGP) *CopyGP {
	source.Refresh(1e-6)

	node := &CopyGP{
		functionalNode: newFunctionalNode(source.Size(), parent),
		kernel:         source.kernel,
	}
	parent.addChild(node)

	srcRanges := source.set.Get("ranges")
	minT, maxT := srcRanges.Bounds()
	frozen := params.NewPositive("ranges", srcRanges.Shape(),
		append([]float64(nil), srcRanges.Value()...),
		expSlice(minT), expSlice(maxT))
	frozen.Fix()
	node.set.Add(frozen)
	node.ranges = frozen

	node.srcIP = clone(source.parent().InducingPoints())
	node.srcIPVar = clone(source.parent().InducingPointsVariance())
	node.srcSmoothInv = make([]*mat.Dense, source.Size())
	node.srcCholR = make([]*mat.Dense, source.Size())
	node.srcAlpha = make([]*mat.VecDense, source.Size())
	for s := 0; s < source.Size(); s++ {
		node.srcSmoothInv[s] = clone(source.covSmoothInv[s])
		node.srcCholR[s] = clone(source.cholR[s])
		node.srcAlpha[s] = mat.VecDenseCopyOf(source.alpha[s])
	}
	return node
}

func expSlice(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Exp(x)
	}
	return out
}

func (c *CopyGP) cm() covarianceModel {
	return covarianceModel{kernel: c.kernel, ranges: c.ranges}
}

func (c *CopyGP) Refresh(jitter float64) {
	refreshParents(c, jitter)
	p := c.parent()
	cov := c.cm().matrix(p.InducingPoints(), c.srcIP,
		p.InducingPointsVariance(), c.srcIPVar)

	nIP, _ := cov.Dims()
	c.inducingPoints = zeros(nIP, c.size)
	c.inducingPointsVariance = zeros(nIP, c.size)
	for s := 0; s < c.size; s++ {
		mu := mulVec(cov, c.srcAlpha[s])
		explained := rowDot(matMul(cov, c.srcSmoothInv[s]), cov)
		for i := 0; i < nIP; i++ {
			c.inducingPoints.Set(i, s, mu.AtVec(i))
			c.inducingPointsVariance.Set(i, s, 1-explained[i])
		}
	}
}

func (c *CopyGP) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	xp, xpVar := c.parent().Propagate(x, xVar)
	cross := c.cm().matrix(xp, c.srcIP, xpVar, c.srcIPVar)
	return gpPredictFromCross(c.size, c.srcAlpha, c.srcSmoothInv, c.srcCholR, cross, nSim, seed)
}

// crossD1 is the central finite difference of the cross-covariance against
// the frozen source inducing posterior, with queries propagated through
// this node's own parent.
func (c *CopyGP) crossD1(x, dirX *mat.Dense, step float64) *mat.Dense {
	p := c.parent()
	yPlus, yVarPlus := p.Propagate(addScaled(x, step/2, dirX), nil)
	yMinus, yVarMinus := p.Propagate(addScaled(x, -step/2, dirX), nil)

	cm := c.cm()
	c1 := cm.matrix(yPlus, c.srcIP, yVarPlus, c.srcIPVar)
	c2 := cm.matrix(yMinus, c.srcIP, yVarMinus, c.srcIPVar)
	out := zerosLike(c1)
	out.Sub(c1, c2)
	out.Scale(1/step, out)
	return out
}

func (c *CopyGP) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	cross := c.crossD1(x, dirX, step)
	n, _ := cross.Dims()

	out := &DirectionalPrediction{
		Mean:              zeros(c.size, n),
		Variance:          zeros(c.size, n),
		ExplainedVariance: zeros(c.size, n),
	}
	pointVar := c.cm().pointVarianceD2(c.parent(), x, dirX, step, c.size)
	for s := 0; s < c.size; s++ {
		mu := mulVec(cross, c.srcAlpha[s])
		explained := rowDot(matMul(cross, c.srcSmoothInv[s]), cross)
		for i := 0; i < n; i++ {
			out.Mean.Set(s, i, mu.AtVec(i))
			out.ExplainedVariance.Set(s, i, explained[i])
			out.Variance.Set(s, i, math.Max(pointVar.At(s, i)-explained[i], 0))
		}
	}
	return out
}

func (c *CopyGP) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(c, x, xVar)
}

// firstDim returns the row count of a coordinate matrix.
func firstDim(x *mat.Dense) int {
	n, _ := x.Dims()
	return n
}
