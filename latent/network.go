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
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// NetworkOutput is the terminal node of a latent network. It concatenates
// its parents like Concatenate, but its KLDivergence accounts for the whole
// network: the sum over all deduplicated ancestors, so layers shared by
// several branches are counted once.
type NetworkOutput struct {
	baseNode
}

func NewNetworkOutput(nodes ...Node) *NetworkOutput {
	if len(nodes) == 0 {
		exceptions.Panicf("latent.NewNetworkOutput: needs at least one parent")
	}
	size := 0
	for _, n := range nodes {
		size += n.Size()
	}
	out := &NetworkOutput{baseNode: newBaseNode(size, nodes[0].Root(), nodes...)}
	for _, n := range nodes {
		n.addChild(out)
	}
	return out
}

func (o *NetworkOutput) UniqueParents() []Node { return uniqueAncestors(o.parents) }

func (o *NetworkOutput) SetParameterLimits(ps *pointset.Points) {
	for _, p := range o.parents {
		p.SetParameterLimits(ps)
	}
}

func (o *NetworkOutput) Refresh(jitter float64) {
	refreshParents(o, jitter)
}

func (o *NetworkOutput) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	var means, vars, explained []*mat.Dense
	var sims [][]*mat.Dense
	for _, p := range o.parents {
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
			blocks := make([]*mat.Dense, len(o.parents))
			for j := range o.parents {
				blocks[j] = sims[j][k]
			}
			out.Simulations[k] = concatRows(blocks...)
		}
	}
	return out
}

func (o *NetworkOutput) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	var means, vars, explained []*mat.Dense
	for _, p := range o.parents {
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

// KLDivergence sums over every deduplicated ancestor, giving the complete
// network divergence in one call.
func (o *NetworkOutput) KLDivergence() float64 {
	total := 0.0
	for _, p := range o.UniqueParents() {
		total += p.KLDivergence()
	}
	return total
}

func (o *NetworkOutput) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(o, x, xVar)
}
