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

// Package likelihoods maps latent posterior moments to expected data
// log-likelihoods, the data term of the variational objective.
//
// A Likelihood covers one output dimension of the latent network. LogProb
// receives per-observation means and variances plus the observed values and
// returns the summed variational expectation of the log-density. NaN
// observations are treated as missing and contribute nothing, so sparsely
// observed variables need no separate masking.
package likelihoods

import (
	"math"

	"github.com/geogp/geogp/params"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/stat/distuv"
)

// Likelihood is the contract between the trainer and a data model for one
// output dimension.
type Likelihood interface {
	params.Owner

	// LogProb returns the expected log-likelihood of y under the
	// variational posterior with the given per-observation moments,
	// summed over non-missing observations.
	LogProb(mean, variance, y []float64) float64
}

// Gaussian models continuous observations with trainable noise. The
// variational expectation is analytic:
//
//	E[log N(y | f, σ²)] = −½·log(2πσ²) − ((y−μ)² + v) / (2σ²)
type Gaussian struct {
	set *params.Set
}

func NewGaussian() *Gaussian {
	g := &Gaussian{set: params.NewSet()}
	g.set.Add(params.NewPositive("noise", []int{1},
		[]float64{0.1}, []float64{1e-6}, []float64{10}))
	return g
}

func (g *Gaussian) AllParameters() []*params.Param { return g.set.All() }

// Noise returns the current noise variance.
func (g *Gaussian) Noise() float64 { return g.set.Get("noise").Scalar() }

func (g *Gaussian) LogProb(mean, variance, y []float64) float64 {
	checkLengths("Gaussian", mean, variance, y)
	noise := g.Noise()
	logNorm := 0.5 * math.Log(2*math.Pi*noise)
	total := 0.0
	for i, yi := range y {
		if math.IsNaN(yi) {
			continue
		}
		dif := yi - mean[i]
		total += -logNorm - (dif*dif+variance[i])/(2*noise)
	}
	return total
}

// Bernoulli models binary observations through a probit link. The
// variational expectation folds the posterior variance into the link:
//
//	E[log p(y | f)] = log Φ((2y−1)·μ / sqrt(1 + v))
type Bernoulli struct {
	set *params.Set
}

func NewBernoulli() *Bernoulli {
	return &Bernoulli{set: params.NewSet()}
}

func (b *Bernoulli) AllParameters() []*params.Param { return b.set.All() }

func (b *Bernoulli) LogProb(mean, variance, y []float64) float64 {
	checkLengths("Bernoulli", mean, variance, y)
	total := 0.0
	for i, yi := range y {
		if math.IsNaN(yi) {
			continue
		}
		sign := 2*yi - 1
		z := sign * mean[i] / math.Sqrt(1+variance[i])
		// Clamp away from zero probability so a single confident miss
		// cannot produce an infinite objective.
		p := math.Max(distuv.UnitNormal.CDF(z), 1e-12)
		total += math.Log(p)
	}
	return total
}

func checkLengths(what string, mean, variance, y []float64) {
	if len(mean) != len(y) || len(variance) != len(y) {
		exceptions.Panicf("likelihoods.%s: moments and observations disagree: %d/%d vs %d",
			what, len(mean), len(variance), len(y))
	}
}
