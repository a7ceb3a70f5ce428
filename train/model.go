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

// Package train fits a latent network to data by maximizing the evidence
// lower bound with Adam over the flattened trainable parameters. Gradients
// come from central finite differences: the objective is cheap relative to
// a refresh and the parameter surface of a sparse network is small, so the
// trainer stays free of any autodiff machinery.
package train

import (
	"math"

	"github.com/geogp/geogp/latent"
	"github.com/geogp/geogp/likelihoods"
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// DefaultJitter is added to covariance diagonals during training; it is
// looser than the prediction default because parameters move through badly
// conditioned regions mid-fit.
const DefaultJitter = 1e-6

// Model couples a latent network with observations and their likelihoods.
// The trainable surface is collected once at construction from the network
// node, its deduplicated ancestors and the likelihoods, so diamond-shaped
// networks contribute each parameter exactly once.
type Model struct {
	node latent.Node
	data *pointset.Points
	y    *mat.Dense
	liks []likelihoods.Likelihood

	set *params.Set
}

// NewModel builds a model over node with one likelihood per output
// dimension. y must be len(data)×node.Size(); NaN entries mark missing
// observations.
func NewModel(node latent.Node, data *pointset.Points, y *mat.Dense,
	liks ...likelihoods.Likelihood) *Model {
	n, dims := y.Dims()
	if n != data.Len() {
		exceptions.Panicf("train.NewModel: %d observations for %d coordinates", n, data.Len())
	}
	if dims != node.Size() {
		exceptions.Panicf("train.NewModel: %d observed variables for a size-%d network",
			dims, node.Size())
	}
	if len(liks) != dims {
		exceptions.Panicf("train.NewModel: %d likelihoods for %d variables", len(liks), dims)
	}

	m := &Model{
		node: node,
		data: data,
		y:    y,
		liks: liks,
		set:  params.NewSet(),
	}

	node.SetParameterLimits(data)
	m.set.Register(node)
	for _, p := range node.UniqueParents() {
		m.set.Register(p)
	}
	for _, lik := range liks {
		m.set.Register(lik)
	}
	return m
}

// Params exposes the flattened trainable surface.
func (m *Model) Params() *params.Set { return m.set }

// Refresh recomputes the network posterior with the given jitter.
func (m *Model) Refresh(jitter float64) { m.node.Refresh(jitter) }

// ELBO refreshes the network and evaluates the evidence lower bound: the
// summed variational expectations of the data log-likelihoods minus the
// network's KL divergence.
func (m *Model) ELBO(jitter float64) float64 {
	m.node.Refresh(jitter)
	pred := m.node.Predict(m.data.Coordinates(), nil, 0, latent.Seed{})

	n, _ := m.y.Dims()
	mean := make([]float64, n)
	variance := make([]float64, n)
	obs := make([]float64, n)

	logLik := 0.0
	for s, lik := range m.liks {
		for i := 0; i < n; i++ {
			mean[i] = pred.Mean.At(s, i)
			variance[i] = pred.Variance.At(s, i)
			obs[i] = m.y.At(i, s)
		}
		logLik += lik.LogProb(mean, variance, obs)
	}
	return logLik - m.kl()
}

// kl avoids double counting: a NetworkOutput already folds its ancestors
// into its own KLDivergence.
func (m *Model) kl() float64 {
	if _, ok := m.node.(*latent.NetworkOutput); ok {
		return m.node.KLDivergence()
	}
	return latent.TotalKL(m.node)
}

// Gradient estimates dELBO/dθ over the flattened transformed-space vector
// by finite differences, leaving the parameters at their current values on
// return. Probe points are kept inside the transformed bounds, so a
// parameter sitting at a bound gets a one-sided difference instead of two
// evaluations clamped onto the same point.
func (m *Model) Gradient(jitter, step float64) []float64 {
	values, minT, maxT := m.set.TrainableValues()
	grad := make([]float64, len(values))
	probe := append([]float64(nil), values...)

	for i := range values {
		hi := math.Min(values[i]+step, maxT[i])
		lo := math.Max(values[i]-step, minT[i])
		if hi <= lo {
			continue
		}
		probe[i] = hi
		m.set.SetTrainableValues(probe)
		plus := m.ELBO(jitter)

		probe[i] = lo
		m.set.SetTrainableValues(probe)
		minus := m.ELBO(jitter)

		probe[i] = values[i]
		grad[i] = (plus - minus) / (hi - lo)
	}
	m.set.SetTrainableValues(values)
	return grad
}

// Predict refreshes the network and evaluates it at the given coordinates,
// with nSim correlated posterior samples when nSim > 0.
func (m *Model) Predict(x *mat.Dense, nSim int, seed latent.Seed) *latent.Prediction {
	m.node.Refresh(latent.DefaultJitter)
	return m.node.Predict(x, nil, nSim, seed)
}
