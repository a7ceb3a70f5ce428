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

package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnitCorrelationAtOrigin(t *testing.T) {
	for _, k := range []Kernel{Gaussian{}, Exponential{}, Spherical{}, Cubic{}} {
		require.InDelta(t, 1, k.Kernelize(0), 1e-12, "%T", k)
	}
}

func TestMonotoneDecreasing(t *testing.T) {
	for _, k := range []Kernel{Gaussian{}, Exponential{}, Spherical{}, Cubic{}} {
		prev := k.Kernelize(0)
		for d := 0.05; d <= 1.5; d += 0.05 {
			cur := k.Kernelize(d)
			require.LessOrEqual(t, cur, prev+1e-12, "%T at d=%g", k, d)
			require.GreaterOrEqual(t, cur, 0.0, "%T at d=%g", k, d)
			prev = cur
		}
	}
}

func TestCompactSupport(t *testing.T) {
	for _, k := range []Kernel{Spherical{}, Cubic{}} {
		require.Zero(t, k.Kernelize(1), "%T", k)
		require.Zero(t, k.Kernelize(2.5), "%T", k)
	}
}

func TestKnownValues(t *testing.T) {
	require.InDelta(t, math.Exp(-3), Gaussian{}.Kernelize(1), 1e-12)
	require.InDelta(t, math.Exp(-1.5), Exponential{}.Kernelize(0.5), 1e-12)
	require.InDelta(t, 1-0.75+0.0625, Spherical{}.Kernelize(0.5), 1e-12)
}
