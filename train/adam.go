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

package train

import (
	"math"

	"github.com/gomlx/exceptions"
)

const (
	// AdamDefaultLearningRate is used by Adam if no learning rate is set.
	AdamDefaultLearningRate = 0.01

	// AdamDefaultDecay is the per-step exponential decay of the learning
	// rate.
	AdamDefaultDecay = 0.999
)

// Adam returns a configuration object for the Adam optimizer over a flat
// parameter vector. Configure it and call Done to obtain the optimizer.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		decay:        AdamDefaultDecay,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-8,
	}
}

// AdamConfig holds the configuration for an Adam optimizer, created with
// Adam(), and once configured call Done.
type AdamConfig struct {
	learningRate float64
	decay        float64
	beta1, beta2 float64
	epsilon      float64
	amsGrad      bool
}

// LearningRate sets the base learning rate. Defaults to
// AdamDefaultLearningRate.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	c.learningRate = value
	return c
}

// Decay sets the per-step multiplicative learning-rate decay. Defaults to
// AdamDefaultDecay; pass 1 to disable.
func (c *AdamConfig) Decay(value float64) *AdamConfig {
	c.decay = value
	return c
}

// Betas sets the two moving-average constants. They default to 0.9 and
// 0.999.
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1, c.beta2 = beta1, beta2
	return c
}

// Epsilon is the denominator stabilizer.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// AMSGrad keeps the running maximum of the second moment instead of the
// plain exponential average.
func (c *AdamConfig) AMSGrad() *AdamConfig {
	c.amsGrad = true
	return c
}

// Done validates the configuration and builds the optimizer.
func (c *AdamConfig) Done() *AdamOptimizer {
	if c.learningRate <= 0 {
		exceptions.Panicf("train.Adam: learning rate must be positive, got %g", c.learningRate)
	}
	if c.beta1 <= 0 || c.beta1 >= 1 || c.beta2 <= 0 || c.beta2 >= 1 {
		exceptions.Panicf("train.Adam: betas must lie in (0, 1), got %g and %g", c.beta1, c.beta2)
	}
	return &AdamOptimizer{config: *c, rate: c.learningRate}
}

// AdamOptimizer maintains first and second gradient moments for a flat
// parameter vector. The moment buffers are allocated lazily on the first
// step and reset whenever the vector length changes.
type AdamOptimizer struct {
	config AdamConfig
	rate   float64
	step   int

	m, v, vHat []float64
}

// Step updates values in place along grad, ascending the objective, and
// returns the same slice.
func (a *AdamOptimizer) Step(values, grad []float64) []float64 {
	if len(values) != len(grad) {
		exceptions.Panicf("train.AdamOptimizer: %d values but %d gradients",
			len(values), len(grad))
	}
	if len(a.m) != len(values) {
		a.m = make([]float64, len(values))
		a.v = make([]float64, len(values))
		a.vHat = make([]float64, len(values))
	}
	a.step++
	c := &a.config
	bias1 := 1 - math.Pow(c.beta1, float64(a.step))
	bias2 := 1 - math.Pow(c.beta2, float64(a.step))

	for i, g := range grad {
		a.m[i] = c.beta1*a.m[i] + (1-c.beta1)*g
		a.v[i] = c.beta2*a.v[i] + (1-c.beta2)*g*g
		second := a.v[i]
		if c.amsGrad {
			a.vHat[i] = math.Max(a.vHat[i], a.v[i])
			second = a.vHat[i]
		}
		mHat := a.m[i] / bias1
		vHat := second / bias2
		values[i] += a.rate * mHat / (math.Sqrt(vHat) + c.epsilon)
	}
	a.rate *= c.decay
	return values
}

// Reset clears the moment buffers and restores the initial learning rate.
func (a *AdamOptimizer) Reset() {
	a.m, a.v, a.vHat = nil, nil, nil
	a.step = 0
	a.rate = a.config.learningRate
}
