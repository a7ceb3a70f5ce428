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

// Package kernels provides stateless distance→covariance functions.
//
// A Kernel maps a normalized distance (length scales are handled upstream by
// the GP nodes) to a correlation in [0, 1], with Kernelize(0) == 1 and the
// practical range at d == 1: the classic geostatistical convention where
// correlation is negligible (or exactly zero, for compact supports) at one
// range unit.
package kernels

import "math"

// Kernel is a pure distance→covariance function over normalized distances.
type Kernel interface {
	// Kernelize returns the correlation at normalized distance d >= 0.
	Kernelize(d float64) float64
}

// Gaussian is the squared-exponential kernel, exp(-3d²): infinitely smooth,
// ~5% correlation at the practical range d == 1.
type Gaussian struct{}

func (Gaussian) Kernelize(d float64) float64 {
	return math.Exp(-3 * d * d)
}

// Exponential is exp(-3d): continuous but not differentiable at the origin.
type Exponential struct{}

func (Exponential) Kernelize(d float64) float64 {
	return math.Exp(-3 * d)
}

// Spherical is the classic compactly supported variogram model,
// 1 - 1.5d + 0.5d³ for d < 1 and zero beyond.
type Spherical struct{}

func (Spherical) Kernelize(d float64) float64 {
	if d >= 1 {
		return 0
	}
	return 1 - 1.5*d + 0.5*d*d*d
}

// Cubic is the compactly supported septic polynomial model, twice
// differentiable at the origin, zero beyond d == 1.
type Cubic struct{}

func (Cubic) Kernelize(d float64) float64 {
	if d >= 1 {
		return 0
	}
	d2 := d * d
	d3 := d2 * d
	d5 := d3 * d2
	d7 := d5 * d2
	return 1 - 7*d2 + 35.0/4.0*d3 - 7.0/2.0*d5 + 3.0/4.0*d7
}
