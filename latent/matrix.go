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
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Small dense-matrix helpers shared by the node implementations. Shapes are
// small (tens of inducing points, a handful of output dimensions), so these
// favor clarity over blocking.

func zeros(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}

func zerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func transpose(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(c, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(j, i, a.At(i, j))
		}
	}
	return out
}

func clone(a *mat.Dense) *mat.Dense {
	out := &mat.Dense{}
	out.CloneFrom(a)
	return out
}

// addScaled returns a + s*b.
func addScaled(a *mat.Dense, s float64, b *mat.Dense) *mat.Dense {
	out := zerosLike(a)
	out.Scale(s, b)
	out.Add(a, out)
	return out
}

// concatRows stacks matrices vertically. All must share a column count.
func concatRows(ms ...*mat.Dense) *mat.Dense {
	totalRows, cols := 0, 0
	for i, m := range ms {
		r, c := m.Dims()
		if i == 0 {
			cols = c
		} else if c != cols {
			exceptions.Panicf("latent: concatRows column mismatch (%d vs %d)", c, cols)
		}
		totalRows += r
	}
	out := mat.NewDense(totalRows, cols, nil)
	offset := 0
	for _, m := range ms {
		r, _ := m.Dims()
		out.Slice(offset, offset+r, 0, cols).(*mat.Dense).Copy(m)
		offset += r
	}
	return out
}

// concatCols stacks matrices horizontally. All must share a row count.
func concatCols(ms ...*mat.Dense) *mat.Dense {
	rows, totalCols := 0, 0
	for i, m := range ms {
		r, c := m.Dims()
		if i == 0 {
			rows = r
		} else if r != rows {
			exceptions.Panicf("latent: concatCols row mismatch (%d vs %d)", r, rows)
		}
		totalCols += c
	}
	out := mat.NewDense(rows, totalCols, nil)
	offset := 0
	for _, m := range ms {
		_, c := m.Dims()
		out.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(m)
		offset += c
	}
	return out
}

// gatherCols selects columns of a in the given order.
func gatherCols(a *mat.Dense, cols []int) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, len(cols), nil)
	for j, col := range cols {
		if col < 0 || col >= c {
			exceptions.Panicf("latent: column %d out of range [0, %d)", col, c)
		}
		for i := 0; i < r; i++ {
			out.Set(i, j, a.At(i, col))
		}
	}
	return out
}

// tileRows repeats matrix a vertically `times` times.
func tileRows(a *mat.Dense, times int) *mat.Dense {
	ms := make([]*mat.Dense, times)
	for i := range ms {
		ms[i] = a
	}
	return concatRows(ms...)
}

// tileSims repeats one size×n matrix as nSim independent simulation slots.
// Used by deterministic nodes, which contribute no stochastic spread.
func tileSims(mean *mat.Dense, nSim int) []*mat.Dense {
	if nSim <= 0 {
		return nil
	}
	sims := make([]*mat.Dense, nSim)
	for k := range sims {
		sims[k] = clone(mean)
	}
	return sims
}

// rowDot returns, per row i, the dot product of a's and b's i-th rows:
// diag(a·bᵗ) without forming the product.
func rowDot(a, b *mat.Dense) []float64 {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		exceptions.Panicf("latent: rowDot shape mismatch (%d×%d vs %d×%d)", ra, ca, rb, cb)
	}
	out := make([]float64, ra)
	for i := 0; i < ra; i++ {
		sum := 0.0
		for j := 0; j < ca; j++ {
			sum += a.At(i, j) * b.At(i, j)
		}
		out[i] = sum
	}
	return out
}

// symmetrize returns (a + aᵗ)/2 as a symmetric matrix, guarding the
// Cholesky factorizations against floating-point asymmetry.
func symmetrize(a *mat.Dense) *mat.SymDense {
	n, c := a.Dims()
	if n != c {
		exceptions.Panicf("latent: symmetrize on non-square %d×%d matrix", n, c)
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return out
}

// choleskyOrDie factorizes a symmetric matrix after adding jitter to the
// diagonal. Failure after the jitter is fatal: the model cannot proceed with
// an indefinite covariance.
func choleskyOrDie(what string, a *mat.Dense, jitter float64) *mat.Cholesky {
	sym := symmetrize(a)
	n := sym.SymmetricDim()
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, sym.At(i, i)+jitter)
	}
	chol := &mat.Cholesky{}
	if !chol.Factorize(sym) {
		exceptions.Panicf("latent: Cholesky factorization of %s failed even with jitter %g; "+
			"covariance is not positive definite", what, jitter)
	}
	return chol
}

// cholSolveIdentity returns the inverse computed through an existing
// Cholesky factorization.
func cholSolveIdentity(chol *mat.Cholesky) *mat.Dense {
	n := chol.SymmetricDim()
	eye := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		eye.Set(i, i, 1)
	}
	out := mat.NewDense(n, n, nil)
	if err := chol.SolveTo(out, eye); err != nil {
		exceptions.Panicf("latent: Cholesky solve failed: %v", err)
	}
	return out
}

// lowerFactor extracts the lower-triangular Cholesky factor as a dense
// matrix.
func lowerFactor(chol *mat.Cholesky) *mat.Dense {
	n := chol.SymmetricDim()
	tri := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(tri)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			out.Set(i, j, tri.At(i, j))
		}
	}
	return out
}

// mulVec returns a·v as a fresh vector.
func mulVec(a *mat.Dense, v *mat.VecDense) *mat.VecDense {
	r, _ := a.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(a, v)
	return out
}

// matMul returns a·b as a fresh matrix.
func matMul(a, b *mat.Dense) *mat.Dense {
	ra, _ := a.Dims()
	_, cb := b.Dims()
	out := mat.NewDense(ra, cb, nil)
	out.Mul(a, b)
	return out
}
