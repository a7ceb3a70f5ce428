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

	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// operationNode is the shared scaffolding of the multi-parent combinators:
// they own no variational posterior (KL is zero) and delegate parameter
// limits to every parent.
type operationNode struct {
	baseNode
}

func newOperationNode(what string, size int, nodes []Node) operationNode {
	if len(nodes) < 2 {
		exceptions.Panicf("latent.%s: needs at least two parents, got %d", what, len(nodes))
	}
	return operationNode{baseNode: newBaseNode(size, nodes[0].Root(), nodes...)}
}

func sameSizeOrDie(what string, nodes []Node) int {
	size := nodes[0].Size()
	for _, n := range nodes[1:] {
		if n.Size() != size {
			exceptions.Panicf("latent.%s: all parents must have the same size, got %d and %d",
				what, size, n.Size())
		}
	}
	return size
}

func (o *operationNode) UniqueParents() []Node { return uniqueAncestors(o.parents) }

func (o *operationNode) SetParameterLimits(ps *pointset.Points) {
	for _, p := range o.parents {
		p.SetParameterLimits(ps)
	}
}

func (o *operationNode) KLDivergence() float64 { return 0 }

func allInducing(nodes []Node) bool {
	for _, n := range nodes {
		if n.InducingPoints() == nil {
			return false
		}
	}
	return true
}

// Concatenate stacks the output dimensions of its parents into a single
// node of size equal to the sum of the parent sizes.
type Concatenate struct {
	operationNode
}

func NewConcatenate(nodes ...Node) *Concatenate {
	size := 0
	for _, n := range nodes {
		size += n.Size()
	}
	c := &Concatenate{newOperationNode("Concatenate", size, nodes)}
	for _, n := range nodes {
		n.addChild(c)
	}
	return c
}

func (c *Concatenate) Refresh(jitter float64) {
	refreshParents(c, jitter)
	if !allInducing(c.parents) {
		return
	}
	var ips, ipVars []*mat.Dense
	for _, p := range c.parents {
		ips = append(ips, p.InducingPoints())
		ipVars = append(ipVars, p.InducingPointsVariance())
	}
	c.inducingPoints = concatCols(ips...)
	c.inducingPointsVariance = concatCols(ipVars...)
}

func (c *Concatenate) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	var means, vars, explained []*mat.Dense
	var sims [][]*mat.Dense
	for _, p := range c.parents {
		pred := p.Predict(x, xVar, nSim, seed)
		means = append(means, pred.Mean)
		vars = append(vars, pred.Variance)
		explained = append(explained, pred.ExplainedVariance)
		sims = append(sims, pred.Simulations)
	}
	out := &Prediction{
		Mean:              concatRows(means...),
		Variance:          concatRows(vars...),
		ExplainedVariance: concatRows(explained...),
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := 0; k < nSim; k++ {
			blocks := make([]*mat.Dense, len(c.parents))
			for j := range c.parents {
				blocks[j] = sims[j][k]
			}
			out.Simulations[k] = concatRows(blocks...)
		}
	}
	return out
}

func (c *Concatenate) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	var means, vars, explained []*mat.Dense
	for _, p := range c.parents {
		dp := p.PredictDirections(x, dirX, step)
		means = append(means, dp.Mean)
		vars = append(vars, dp.Variance)
		explained = append(explained, dp.ExplainedVariance)
	}
	return &DirectionalPrediction{
		Mean:              concatRows(means...),
		Variance:          concatRows(vars...),
		ExplainedVariance: concatRows(explained...),
	}
}

func (c *Concatenate) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(c, x, xVar)
}

// Add sums equal-size parents elementwise. Parent simulations are drawn
// from distinct seed branches so the summed fields stay independent.
type Add struct {
	operationNode
}

func NewAdd(nodes ...Node) *Add {
	a := &Add{newOperationNode("Add", sameSizeOrDie("Add", nodes), nodes)}
	for _, n := range nodes {
		n.addChild(a)
	}
	return a
}

func (a *Add) Refresh(jitter float64) {
	refreshParents(a, jitter)
	if !allInducing(a.parents) {
		return
	}
	ip := clone(a.parents[0].InducingPoints())
	ipVar := clone(a.parents[0].InducingPointsVariance())
	for _, p := range a.parents[1:] {
		ip.Add(ip, p.InducingPoints())
		ipVar.Add(ipVar, p.InducingPointsVariance())
	}
	a.inducingPoints = ip
	a.inducingPointsVariance = ipVar
}

func (a *Add) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	var out *Prediction
	for i, p := range a.parents {
		pred := p.Predict(x, xVar, nSim, seed.Branch(i))
		if out == nil {
			out = pred
			continue
		}
		out.Mean.Add(out.Mean, pred.Mean)
		out.Variance.Add(out.Variance, pred.Variance)
		out.ExplainedVariance.Add(out.ExplainedVariance, pred.ExplainedVariance)
		for k := range out.Simulations {
			out.Simulations[k].Add(out.Simulations[k], pred.Simulations[k])
		}
	}
	return out
}

func (a *Add) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	var out *DirectionalPrediction
	for _, p := range a.parents {
		dp := p.PredictDirections(x, dirX, step)
		if out == nil {
			out = dp
			continue
		}
		out.Mean.Add(out.Mean, dp.Mean)
		out.Variance.Add(out.Variance, dp.Variance)
		out.ExplainedVariance.Add(out.ExplainedVariance, dp.ExplainedVariance)
	}
	return out
}

func (a *Add) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(a, x, xVar)
}

// Multiply combines equal-size parents as a product of independent fields:
// the product mean is the product of means, and the variance follows the
// moment identity Var(Πf) = Π(μ²+σ²) − Πμ².
type Multiply struct {
	operationNode
}

func NewMultiply(nodes ...Node) *Multiply {
	m := &Multiply{newOperationNode("Multiply", sameSizeOrDie("Multiply", nodes), nodes)}
	for _, n := range nodes {
		n.addChild(m)
	}
	return m
}

func (m *Multiply) Refresh(jitter float64) {
	refreshParents(m, jitter)
}

func (m *Multiply) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	preds := make([]*Prediction, len(m.parents))
	for i, p := range m.parents {
		preds[i] = p.Predict(x, xVar, nSim, seed.Branch(i))
	}
	n, _ := x.Dims()
	out := &Prediction{
		Mean:              zeros(m.size, n),
		Variance:          zeros(m.size, n),
		ExplainedVariance: zeros(m.size, n),
	}
	for s := 0; s < m.size; s++ {
		for i := 0; i < n; i++ {
			prodMu, prodMuSq, prodMuVar, prodMuVarExp := 1.0, 1.0, 1.0, 1.0
			for _, pred := range preds {
				mu := pred.Mean.At(s, i)
				v := pred.Variance.At(s, i)
				e := pred.ExplainedVariance.At(s, i)
				prodMu *= mu
				prodMuSq *= mu * mu
				prodMuVar *= mu*mu + v
				prodMuVarExp *= mu*mu + v + e
			}
			variance := prodMuVar - prodMuSq
			out.Mean.Set(s, i, prodMu)
			out.Variance.Set(s, i, variance)
			out.ExplainedVariance.Set(s, i, prodMuVarExp-prodMuSq-variance)
		}
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := 0; k < nSim; k++ {
			prod := clone(preds[0].Simulations[k])
			for _, pred := range preds[1:] {
				prod.MulElem(prod, pred.Simulations[k])
			}
			out.Simulations[k] = prod
		}
	}
	return out
}

func (m *Multiply) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	dps := make([]*DirectionalPrediction, len(m.parents))
	for i, p := range m.parents {
		dps[i] = p.PredictDirections(x, dirX, step)
	}
	n, _ := x.Dims()
	out := &DirectionalPrediction{
		Mean:              zeros(m.size, n),
		Variance:          zeros(m.size, n),
		ExplainedVariance: zeros(m.size, n),
	}
	for s := 0; s < m.size; s++ {
		for i := 0; i < n; i++ {
			prodMu, prodMuSq, prodMuVar, prodMuVarExp := 1.0, 1.0, 1.0, 1.0
			for _, dp := range dps {
				mu := dp.Mean.At(s, i)
				v := dp.Variance.At(s, i)
				e := dp.ExplainedVariance.At(s, i)
				prodMu *= mu
				prodMuSq *= mu * mu
				prodMuVar *= mu*mu + v
				prodMuVarExp *= mu*mu + v + e
			}
			variance := prodMuVar - prodMuSq
			out.Mean.Set(s, i, prodMu)
			out.Variance.Set(s, i, variance)
			out.ExplainedVariance.Set(s, i, prodMuVarExp-prodMuSq-variance)
		}
	}
	return out
}

func (m *Multiply) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(m, x, xVar)
}

// LinearCombination mixes equal-size parents through a trainable
// compositional weight vector: the weights stay positive and sum to one,
// means combine with w and variances with w².
type LinearCombination struct {
	operationNode
}

func NewLinearCombination(nodes ...Node) *LinearCombination {
	lc := &LinearCombination{
		newOperationNode("LinearCombination", sameSizeOrDie("LinearCombination", nodes), nodes)}
	for _, n := range nodes {
		n.addChild(lc)
	}
	lc.set.Add(params.NewCompositional("weights", constants(len(nodes), 1/float64(len(nodes)))))
	return lc
}

func (lc *LinearCombination) weights() []float64 { return lc.set.Get("weights").Value() }

func (lc *LinearCombination) Refresh(jitter float64) {
	refreshParents(lc, jitter)
	if !allInducing(lc.parents) {
		return
	}
	w := lc.weights()
	ip := zerosLike(lc.parents[0].InducingPoints())
	ipVar := zerosLike(ip)
	for i, p := range lc.parents {
		ip = addScaled(ip, w[i], p.InducingPoints())
		ipVar = addScaled(ipVar, w[i]*w[i], p.InducingPointsVariance())
	}
	lc.inducingPoints = ip
	lc.inducingPointsVariance = ipVar
}

func (lc *LinearCombination) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	w := lc.weights()
	var out *Prediction
	for i, p := range lc.parents {
		pred := p.Predict(x, xVar, nSim, seed.Branch(i))
		if out == nil {
			out = &Prediction{
				Mean:              zerosLike(pred.Mean),
				Variance:          zerosLike(pred.Variance),
				ExplainedVariance: zerosLike(pred.ExplainedVariance),
			}
			if nSim > 0 {
				out.Simulations = make([]*mat.Dense, nSim)
				for k := 0; k < nSim; k++ {
					out.Simulations[k] = zerosLike(pred.Simulations[k])
				}
			}
		}
		out.Mean = addScaled(out.Mean, w[i], pred.Mean)
		out.Variance = addScaled(out.Variance, w[i]*w[i], pred.Variance)
		out.ExplainedVariance = addScaled(out.ExplainedVariance, w[i]*w[i], pred.ExplainedVariance)
		for k := range out.Simulations {
			out.Simulations[k] = addScaled(out.Simulations[k], w[i], pred.Simulations[k])
		}
	}
	return out
}

func (lc *LinearCombination) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	w := lc.weights()
	var out *DirectionalPrediction
	for i, p := range lc.parents {
		dp := p.PredictDirections(x, dirX, step)
		if out == nil {
			out = &DirectionalPrediction{
				Mean:              zerosLike(dp.Mean),
				Variance:          zerosLike(dp.Variance),
				ExplainedVariance: zerosLike(dp.ExplainedVariance),
			}
		}
		out.Mean = addScaled(out.Mean, w[i], dp.Mean)
		out.Variance = addScaled(out.Variance, w[i]*w[i], dp.Variance)
		out.ExplainedVariance = addScaled(out.ExplainedVariance, w[i]*w[i], dp.ExplainedVariance)
	}
	return out
}

func (lc *LinearCombination) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(lc, x, xVar)
}

// ProductOfExperts fuses equal-size parents by confidence: each expert is
// weighted by how much of the prior variance it explains at each point, so
// experts far from their data fade out of the consensus.
type ProductOfExperts struct {
	operationNode
}

func NewProductOfExperts(nodes ...Node) *ProductOfExperts {
	pe := &ProductOfExperts{
		newOperationNode("ProductOfExperts", sameSizeOrDie("ProductOfExperts", nodes), nodes)}
	for _, n := range nodes {
		n.addChild(pe)
	}
	return pe
}

func (pe *ProductOfExperts) Refresh(jitter float64) {
	refreshParents(pe, jitter)
}

func (pe *ProductOfExperts) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	effNSim := nSim
	if effNSim < 1 {
		effNSim = 1
	}
	preds := make([]*Prediction, len(pe.parents))
	for i, p := range pe.parents {
		preds[i] = p.Predict(x, xVar, effNSim, seed.Branch(i))
	}
	n, _ := x.Dims()
	out := &Prediction{
		Mean:              zeros(pe.size, n),
		Variance:          zeros(pe.size, n),
		ExplainedVariance: zeros(pe.size, n),
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := 0; k < nSim; k++ {
			out.Simulations[k] = zeros(pe.size, n)
		}
	}
	weights := make([]float64, len(pe.parents))
	for s := 0; s < pe.size; s++ {
		for i := 0; i < n; i++ {
			total := 0.0
			for j, pred := range preds {
				w := pred.ExplainedVariance.At(s, i)/(pred.Variance.At(s, i)+1e-6) + 1e-6
				weights[j] = w
				total += w
			}
			for j, pred := range preds {
				w := weights[j] / total
				out.Mean.Set(s, i, out.Mean.At(s, i)+w*pred.Mean.At(s, i))
				out.Variance.Set(s, i, out.Variance.At(s, i)+w*pred.Variance.At(s, i))
				out.ExplainedVariance.Set(s, i,
					out.ExplainedVariance.At(s, i)+w*pred.ExplainedVariance.At(s, i))
				for k := 0; k < nSim; k++ {
					out.Simulations[k].Set(s, i,
						out.Simulations[k].At(s, i)+w*pred.Simulations[k].At(s, i))
				}
			}
		}
	}
	return out
}

func (pe *ProductOfExperts) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	dps := make([]*DirectionalPrediction, len(pe.parents))
	for i, p := range pe.parents {
		dps[i] = p.PredictDirections(x, dirX, step)
	}
	n, _ := x.Dims()
	out := &DirectionalPrediction{
		Mean:              zeros(pe.size, n),
		Variance:          zeros(pe.size, n),
		ExplainedVariance: zeros(pe.size, n),
	}
	weights := make([]float64, len(pe.parents))
	for s := 0; s < pe.size; s++ {
		for i := 0; i < n; i++ {
			total := 0.0
			for j, dp := range dps {
				w := dp.ExplainedVariance.At(s, i) / (dp.Variance.At(s, i) + 1e-6)
				weights[j] = w
				total += w
			}
			for j, dp := range dps {
				w := weights[j] / total
				out.Mean.Set(s, i, out.Mean.At(s, i)+w*dp.Mean.At(s, i))
				out.Variance.Set(s, i, out.Variance.At(s, i)+w*dp.Variance.At(s, i))
				out.ExplainedVariance.Set(s, i,
					out.ExplainedVariance.At(s, i)+w*dp.ExplainedVariance.At(s, i))
			}
		}
	}
	return out
}

func (pe *ProductOfExperts) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(pe, x, xVar)
}

// LinearTrendGP blends a Linear node with a GP node of the same size
// through a per-dimension trainable weight. Both parents see the same seed
// so the trend and residual simulations stay coherent.
type LinearTrendGP struct {
	operationNode
}

// NewLinearTrend combines a linear trend with a GP residual.
func NewLinearTrend(linear *Linear, gp Node) *LinearTrendGP {
	switch gp.(type) {
	case *BasicGP, *GPWithGradient:
	default:
		exceptions.Panicf("latent.NewLinearTrend: gp parent must be a GP node, got %T", gp)
	}
	if linear.Size() != gp.Size() {
		exceptions.Panicf("latent.NewLinearTrend: size mismatch between parents: %d and %d",
			linear.Size(), gp.Size())
	}
	lt := &LinearTrendGP{
		newOperationNode("LinearTrendGP", linear.Size(), []Node{linear, gp})}
	linear.addChild(lt)
	gp.addChild(lt)
	size := lt.size
	lt.set.Add(params.NewReal("gp_weight", []int{size},
		constants(size, 0.5), constants(size, 0.01), constants(size, 0.99)))
	return lt
}

// trendWeights returns the per-dimension blend: wGp = sqrt(gp_weight) and
// wLin = sqrt(2·(1 − wGp²)).
func (lt *LinearTrendGP) trendWeights() (wGp, wLin []float64) {
	gpWeight := lt.set.Get("gp_weight").Value()
	wGp = make([]float64, len(gpWeight))
	wLin = make([]float64, len(gpWeight))
	for i, w := range gpWeight {
		wGp[i] = math.Sqrt(w)
		wLin[i] = math.Sqrt(2 * (1 - w))
	}
	return wGp, wLin
}

func (lt *LinearTrendGP) Refresh(jitter float64) {
	refreshParents(lt, jitter)
	wGp, wLin := lt.trendWeights()
	lin, gp := lt.parents[0], lt.parents[1]
	if lin.InducingPoints() == nil || gp.InducingPoints() == nil {
		return
	}
	nIP, _ := lin.InducingPoints().Dims()
	lt.inducingPoints = zeros(nIP, lt.size)
	lt.inducingPointsVariance = zeros(nIP, lt.size)
	for s := 0; s < lt.size; s++ {
		for i := 0; i < nIP; i++ {
			lt.inducingPoints.Set(i, s,
				wLin[s]*lin.InducingPoints().At(i, s)+wGp[s]*gp.InducingPoints().At(i, s))
			lt.inducingPointsVariance.Set(i, s,
				wLin[s]*wLin[s]*lin.InducingPointsVariance().At(i, s)+
					wGp[s]*wGp[s]*gp.InducingPointsVariance().At(i, s))
		}
	}
}

func (lt *LinearTrendGP) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	wGp, wLin := lt.trendWeights()
	linPred := lt.parents[0].Predict(x, xVar, nSim, seed)
	gpPred := lt.parents[1].Predict(x, xVar, nSim, seed)

	n, _ := x.Dims()
	out := &Prediction{
		Mean:              zeros(lt.size, n),
		Variance:          zeros(lt.size, n),
		ExplainedVariance: zeros(lt.size, n),
	}
	if nSim > 0 {
		out.Simulations = make([]*mat.Dense, nSim)
		for k := 0; k < nSim; k++ {
			out.Simulations[k] = zeros(lt.size, n)
		}
	}
	for s := 0; s < lt.size; s++ {
		g, l := wGp[s], wLin[s]
		for i := 0; i < n; i++ {
			out.Mean.Set(s, i, g*gpPred.Mean.At(s, i)+l*linPred.Mean.At(s, i))
			out.Variance.Set(s, i, g*g*gpPred.Variance.At(s, i)+l*l*linPred.Variance.At(s, i))
			out.ExplainedVariance.Set(s, i,
				g*g*gpPred.ExplainedVariance.At(s, i)+l*l*linPred.ExplainedVariance.At(s, i))
			for k := 0; k < nSim; k++ {
				out.Simulations[k].Set(s, i,
					g*gpPred.Simulations[k].At(s, i)+l*linPred.Simulations[k].At(s, i))
			}
		}
	}
	return out
}

func (lt *LinearTrendGP) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	wGp, wLin := lt.trendWeights()
	linDP := lt.parents[0].PredictDirections(x, dirX, step)
	gpDP := lt.parents[1].PredictDirections(x, dirX, step)

	n, _ := x.Dims()
	out := &DirectionalPrediction{
		Mean:              zeros(lt.size, n),
		Variance:          zeros(lt.size, n),
		ExplainedVariance: zeros(lt.size, n),
	}
	for s := 0; s < lt.size; s++ {
		g, l := wGp[s], wLin[s]
		for i := 0; i < n; i++ {
			out.Mean.Set(s, i, g*gpDP.Mean.At(s, i)+l*linDP.Mean.At(s, i))
			out.Variance.Set(s, i, g*g*gpDP.Variance.At(s, i)+l*l*linDP.Variance.At(s, i))
			out.ExplainedVariance.Set(s, i,
				g*g*gpDP.ExplainedVariance.At(s, i)+l*l*linDP.ExplainedVariance.At(s, i))
		}
	}
	return out
}

func (lt *LinearTrendGP) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(lt, x, xVar)
}
