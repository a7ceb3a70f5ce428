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
	"github.com/gomlx/exceptions"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// DefaultGradientStep is the finite-difference step in transformed
// parameter space.
const DefaultGradientStep = 1e-4

// FitConfig configures a training run. Create it with Fit, chain the
// options and call Done to run.
type FitConfig struct {
	model     *Model
	optimizer *AdamOptimizer
	maxIter   int
	jitter    float64
	gradStep  float64
	progress  bool
}

// Fit starts the configuration of a training run for model.
func Fit(model *Model) *FitConfig {
	return &FitConfig{
		model:    model,
		maxIter:  1000,
		jitter:   DefaultJitter,
		gradStep: DefaultGradientStep,
		progress: true,
	}
}

// WithOptimizer replaces the default Adam optimizer.
func (c *FitConfig) WithOptimizer(opt *AdamOptimizer) *FitConfig {
	c.optimizer = opt
	return c
}

// MaxIter sets the number of gradient steps. Defaults to 1000.
func (c *FitConfig) MaxIter(n int) *FitConfig {
	if n < 1 {
		exceptions.Panicf("train.Fit: MaxIter must be positive, got %d", n)
	}
	c.maxIter = n
	return c
}

// Jitter sets the covariance diagonal jitter used throughout the run.
func (c *FitConfig) Jitter(jitter float64) *FitConfig {
	c.jitter = jitter
	return c
}

// GradientStep sets the finite-difference step.
func (c *FitConfig) GradientStep(step float64) *FitConfig {
	if step <= 0 {
		exceptions.Panicf("train.Fit: GradientStep must be positive, got %g", step)
	}
	c.gradStep = step
	return c
}

// Quiet disables the progress bar. Log output still follows klog verbosity.
func (c *FitConfig) Quiet() *FitConfig {
	c.progress = false
	return c
}

// Done runs the training loop and returns the per-iteration ELBO trace.
func (c *FitConfig) Done() []float64 {
	model := c.model
	opt := c.optimizer
	if opt == nil {
		opt = Adam().Done()
	}

	var bar *progressbar.ProgressBar
	if c.progress {
		bar = progressbar.NewOptions(c.maxIter,
			progressbar.OptionSetDescription("maximizing ELBO"),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
	}

	trace := make([]float64, 0, c.maxIter)
	for iter := 0; iter < c.maxIter; iter++ {
		grad := model.Gradient(c.jitter, c.gradStep)
		values, _, _ := model.set.TrainableValues()
		model.set.SetTrainableValues(opt.Step(values, grad))

		elbo := model.ELBO(c.jitter)
		trace = append(trace, elbo)

		if bar != nil {
			_ = bar.Add(1)
		}
		if klog.V(1).Enabled() && (iter%50 == 0 || iter == c.maxIter-1) {
			klog.Infof("iteration %d: ELBO %.6g", iter, elbo)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	klog.V(1).Infof("training finished after %d iterations, ELBO %.6g",
		c.maxIter, trace[len(trace)-1])
	return trace
}
