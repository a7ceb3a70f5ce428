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

// Package pointset holds spatial coordinates and their bounding box.
//
// A Points value is the coordinate container the latent network consumes: it
// exposes the raw n×d coordinate matrix (rows are points) and the axis-aligned
// bounding box used to constrain inducing-point locations and transform
// length scales.
package pointset

import (
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// BoundingBox is the axis-aligned extent of a point set, one entry per
// coordinate dimension.
type BoundingBox struct {
	Min, Max []float64
}

// Diagonal returns the Euclidean length of the box diagonal.
func (b BoundingBox) Diagonal() float64 {
	sum := 0.0
	for i := range b.Min {
		d := b.Max[i] - b.Min[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Points is an immutable set of spatial coordinates.
type Points struct {
	coords *mat.Dense
	box    BoundingBox
}

// New wraps an n×d coordinate matrix (rows are points). The matrix is not
// copied; callers must not modify it afterwards.
func New(coords *mat.Dense) *Points {
	n, d := coords.Dims()
	if n == 0 || d == 0 {
		exceptions.Panicf("pointset.New: empty coordinate matrix (%d×%d)", n, d)
	}
	box := BoundingBox{
		Min: make([]float64, d),
		Max: make([]float64, d),
	}
	for j := 0; j < d; j++ {
		box.Min[j] = math.Inf(1)
		box.Max[j] = math.Inf(-1)
		for i := 0; i < n; i++ {
			v := coords.At(i, j)
			box.Min[j] = math.Min(box.Min[j], v)
			box.Max[j] = math.Max(box.Max[j], v)
		}
	}
	return &Points{coords: coords, box: box}
}

// FromSlice builds a point set from row-major coordinates.
func FromSlice(n, d int, values []float64) *Points {
	return New(mat.NewDense(n, d, values))
}

// Len returns the number of points.
func (p *Points) Len() int {
	n, _ := p.coords.Dims()
	return n
}

// NDim returns the coordinate dimensionality.
func (p *Points) NDim() int {
	_, d := p.coords.Dims()
	return d
}

// Coordinates returns the underlying n×d matrix. Callers must treat it as
// read-only.
func (p *Points) Coordinates() *mat.Dense {
	return p.coords
}

// Bounds returns the axis-aligned bounding box.
func (p *Points) Bounds() BoundingBox {
	return p.box
}

// Subset returns a new point set with the selected rows, in order.
func (p *Points) Subset(rows []int) *Points {
	n, d := len(rows), p.NDim()
	out := mat.NewDense(n, d, nil)
	for i, r := range rows {
		for j := 0; j < d; j++ {
			out.Set(i, j, p.coords.At(r, j))
		}
	}
	return New(out)
}

// Grid1D builds n equally spaced points spanning [lo, hi], a common choice
// of inducing-point locations in one dimension.
func Grid1D(lo, hi float64, n int) *Points {
	if n < 2 {
		exceptions.Panicf("pointset.Grid1D: need at least 2 points, got %d", n)
	}
	out := mat.NewDense(n, 1, nil)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		out.Set(i, 0, lo+float64(i)*step)
	}
	return New(out)
}

// Grid2D builds an nx×ny regular grid spanning the given rectangle.
func Grid2D(loX, hiX float64, nx int, loY, hiY float64, ny int) *Points {
	if nx < 2 || ny < 2 {
		exceptions.Panicf("pointset.Grid2D: need at least 2 points per axis, got %d×%d", nx, ny)
	}
	out := mat.NewDense(nx*ny, 2, nil)
	stepX := (hiX - loX) / float64(nx-1)
	stepY := (hiY - loY) / float64(ny-1)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			out.Set(i*ny+j, 0, loX+float64(i)*stepX)
			out.Set(i*ny+j, 1, loY+float64(j)*stepY)
		}
	}
	return New(out)
}
