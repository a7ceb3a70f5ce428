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

	"github.com/geogp/geogp/kernels"
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// covarianceModel evaluates a stationary kernel generalized to uncertain
// inputs. Given per-dimension input variances varX, varY and learned
// per-dimension ranges, the effective variance per dimension is
// ranges² + (varX+varY)/2; the squared Mahalanobis distance uses it, and the
// raw kernel value is rescaled by
//
//	Π_k ((varX_k+r_k²)(varY_k+r_k²))^¼ / sqrt(Π_k total_k)
//
// which shrinks correlation as upstream uncertainty grows and reduces
// exactly to the plain kernel when both variances are zero.
type covarianceModel struct {
	kernel kernels.Kernel
	ranges *params.Param
}

// quarterRootDet returns, per row, Π_k (var_k + r_k²)^¼. A nil variance
// matrix counts as zero variance.
func (cm covarianceModel) quarterRootDet(x, xVar *mat.Dense, rangesSq []float64) []float64 {
	n, d := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		prod := 1.0
		for k := 0; k < d; k++ {
			v := rangesSq[k]
			if xVar != nil {
				v += xVar.At(i, k)
			}
			prod *= v
		}
		out[i] = math.Pow(prod, 0.25)
	}
	return out
}

func (cm covarianceModel) rangesSq() []float64 {
	r := cm.ranges.Value()
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = v * v
	}
	return out
}

// matrix returns the nx×ny uncertain-input covariance between point sets x
// and y (rows are points). varX/varY may be nil for noiseless inputs.
func (cm covarianceModel) matrix(x, y, varX, varY *mat.Dense) *mat.Dense {
	nx, d := x.Dims()
	ny, dy := y.Dims()
	if d != dy {
		exceptions.Panicf("latent: covariance between %d-dim and %d-dim points", d, dy)
	}
	rangesSq := cm.rangesSq()
	if len(rangesSq) != d {
		exceptions.Panicf("latent: ranges have %d dims, points have %d", len(rangesSq), d)
	}

	detX := cm.quarterRootDet(x, varX, rangesSq)
	detY := cm.quarterRootDet(y, varY, rangesSq)

	out := mat.NewDense(nx, ny, nil)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			distSq := 0.0
			detTotal := 1.0
			for k := 0; k < d; k++ {
				vx, vy := 0.0, 0.0
				if varX != nil {
					vx = varX.At(i, k)
				}
				if varY != nil {
					vy = varY.At(j, k)
				}
				total := rangesSq[k] + (vx+vy)/2
				dif := x.At(i, k) - y.At(j, k)
				distSq += dif * dif / total
				detTotal *= total
			}
			norm := detX[i] * detY[j] / math.Sqrt(detTotal)
			out.Set(i, j, cm.kernel.Kernelize(math.Sqrt(distSq))*norm)
		}
	}
	return out
}

// crossD1 is the central finite difference of the cross-covariance in its
// second argument: (C(ip, y+½h·dir) − C(ip, y−½h·dir)) / h, where the first
// argument is the parent's inducing-point posterior. Shape nInducing×n.
func (cm covarianceModel) crossD1(parent Node, y, dirY, yVar *mat.Dense, step float64) *mat.Dense {
	ip := parent.InducingPoints()
	ipVar := parent.InducingPointsVariance()

	yPlus, yVarPlus := parent.Propagate(addScaled(y, step/2, dirY), yVar)
	yMinus, yVarMinus := parent.Propagate(addScaled(y, -step/2, dirY), yVar)

	c1 := cm.matrix(ip, yPlus, ipVar, yVarPlus)
	c2 := cm.matrix(ip, yMinus, ipVar, yVarMinus)
	out := zerosLike(c1)
	out.Sub(c1, c2)
	out.Scale(1/step, out)
	return out
}

// pointVarianceD2 estimates the prior variance of the directional derivative
// at each point via a symmetric-difference kernel evaluation, returning a
// size×n matrix (the same row tiled across output dimensions).
func (cm covarianceModel) pointVarianceD2(parent Node, x, dirX *mat.Dense, step float64, size int) *mat.Dense {
	mu1, var1 := parent.Propagate(addScaled(x, step/2, dirX), nil)
	mu2, var2 := parent.Propagate(addScaled(x, -step/2, dirX), nil)

	rangesSq := cm.rangesSq()
	n, d := mu1.Dims()

	out := mat.NewDense(size, n, nil)
	for i := 0; i < n; i++ {
		distSq := 0.0
		detAvg, det1, det2 := 1.0, 1.0, 1.0
		for k := 0; k < d; k++ {
			v1 := var1.At(i, k) + rangesSq[k]
			v2 := var2.At(i, k) + rangesSq[k]
			avg := 0.5 * (v1 + v2)
			dif := mu1.At(i, k) - mu2.At(i, k)
			distSq += dif * dif / avg
			detAvg *= avg
			det1 *= v1
			det2 *= v2
		}
		norm := math.Pow(det1, 0.25) * math.Pow(det2, 0.25) / math.Sqrt(detAvg)
		covStep := cm.kernel.Kernelize(math.Sqrt(distSq)) * norm
		pointVar := 2 * (1 - covStep) / (step * step)
		for s := 0; s < size; s++ {
			out.Set(s, i, pointVar)
		}
	}
	return out
}

// GPConfig configures a BasicGP. Create it with GP, chain the options and
// call Done.
type GPConfig struct {
	parent Node
	size   int
	kernel kernels.Kernel
}

// GP starts the configuration of a sparse variational GP layer on top of
// parent.
func GP(parent Node) *GPConfig {
	if parent == nil {
		exceptions.Panicf("latent.GP: parent is nil")
	}
	return &GPConfig{parent: parent, size: 1, kernel: kernels.Gaussian{}}
}

// WithSize sets the number of independent output dimensions. Defaults to 1.
func (c *GPConfig) WithSize(size int) *GPConfig {
	if size < 1 {
		exceptions.Panicf("latent.GP: size must be positive, got %d", size)
	}
	c.size = size
	return c
}

// WithKernel sets the stationary kernel. Defaults to kernels.Gaussian.
func (c *GPConfig) WithKernel(k kernels.Kernel) *GPConfig {
	c.kernel = k
	return c
}

// Done builds the BasicGP.
func (c *GPConfig) Done() *BasicGP {
	node := &BasicGP{
		baseNode: newBaseNode(c.size, c.parent.Root(), c.parent),
		kernel:   c.kernel,
	}
	c.parent.addChild(node)
	nIP := node.root.NumInducing()
	addGPParameters(node.set, c.size, nIP, nIP, c.parent.Size())
	return node
}

// addGPParameters registers the variational parameters shared by the GP node
// variants: the whitened posterior coefficients (alphaLen entries per output
// dimension), the per-inducing-point positive slack delta, and the fixed
// per-input-dimension ranges.
func addGPParameters(set *params.Set, size, alphaLen, nIP, parentSize int) {
	alphaInit := make([]float64, size*alphaLen)
	rng := rand.New(rand.NewSource(0x6A09E667F3BCC908))
	for i := range alphaInit {
		alphaInit[i] = rng.NormFloat64() * 1e-3
	}
	set.Add(params.NewReal("alpha_white", []int{size, alphaLen, 1},
		alphaInit, constants(size*alphaLen, -10), constants(size*alphaLen, 10)))

	set.Add(params.NewPositive("delta", []int{size, nIP},
		constants(size*nIP, 1), constants(size*nIP, 1e-6), constants(size*nIP, 1e4)))

	ranges := params.NewPositive("ranges", []int{1, 1, parentSize},
		constants(parentSize, 1), constants(parentSize, 1e-6), constants(parentSize, 10))
	ranges.Fix()
	set.Add(ranges)
}

func constants(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// BasicGP is a sparse variational GP layer: a stationary kernel over the
// parent's (possibly uncertain) output, with the posterior parameterized by
// whitened coefficients and a positive diagonal slack at the network's
// inducing points. Each of the size output dimensions is an independent GP
// sharing the prior covariance.
type BasicGP struct {
	baseNode
	kernel kernels.Kernel

	// Refresh snapshot. The prior covariance and its factors are shared
	// across output dimensions; the smoothed posterior quantities differ
	// per dimension because delta does.
	cov     *mat.Dense
	covChol *mat.Dense
	covInv  *mat.Dense

	covSmoothInv    []*mat.Dense
	covSmoothLogDet []float64
	cholR           []*mat.Dense
	alpha           []*mat.VecDense
}

func (g *BasicGP) parent() Node { return g.parents[0] }

func (g *BasicGP) cm() covarianceModel {
	return covarianceModel{kernel: g.kernel, ranges: g.set.Get("ranges")}
}

func (g *BasicGP) UniqueParents() []Node { return uniqueParents(g) }

func (g *BasicGP) SetParameterLimits(ps *pointset.Points) {
	g.parent().SetParameterLimits(ps)
}

func (g *BasicGP) Refresh(jitter float64) {
	refreshParents(g, jitter)
	parent := g.parent()
	ip := parent.InducingPoints()
	ipVar := parent.InducingPointsVariance()
	nIP, _ := ip.Dims()

	cm := g.cm()
	cov := cm.matrix(ip, ip, ipVar, ipVar)
	chol := choleskyOrDie("prior covariance", cov, jitter)
	g.cov = cov
	g.covChol = lowerFactor(chol)
	g.covInv = cholSolveIdentity(chol)

	delta := g.set.Get("delta").Value()
	alphaWhite := g.set.Get("alpha_white").Value()

	g.covSmoothInv = make([]*mat.Dense, g.size)
	g.covSmoothLogDet = make([]float64, g.size)
	g.cholR = make([]*mat.Dense, g.size)
	g.alpha = make([]*mat.VecDense, g.size)
	g.inducingPoints = zeros(nIP, g.size)
	g.inducingPointsVariance = zeros(nIP, g.size)

	for s := 0; s < g.size; s++ {
		covSmooth := clone(cov)
		for i := 0; i < nIP; i++ {
			covSmooth.Set(i, i, covSmooth.At(i, i)+delta[s*nIP+i])
		}
		smoothChol := choleskyOrDie("smoothed covariance", covSmooth, jitter)
		g.covSmoothInv[s] = cholSolveIdentity(smoothChol)
		g.covSmoothLogDet[s] = smoothChol.LogDet()

		residual := zerosLike(cov)
		residual.Sub(g.covInv, g.covSmoothInv[s])
		g.cholR[s] = lowerFactor(choleskyOrDie("residual factor", residual, jitter))

		aw := mat.NewVecDense(nIP, alphaWhite[s*nIP:(s+1)*nIP])
		predInputs := mulVec(g.covChol, aw)
		g.alpha[s] = mulVec(g.covInv, predInputs)

		explained := rowDot(matMul(cov, g.covSmoothInv[s]), cov)
		for i := 0; i < nIP; i++ {
			g.inducingPoints.Set(i, s, predInputs.AtVec(i))
			g.inducingPointsVariance.Set(i, s, 1-explained[i])
		}
	}
}

func (g *BasicGP) Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction {
	parent := g.parent()
	xp, xpVar := parent.Propagate(x, xVar)
	cross := g.cm().matrix(xp, parent.InducingPoints(), xpVar, parent.InducingPointsVariance())
	return g.predictFromCross(cross, nSim, seed)
}

// predictFromCross evaluates the shared GP posterior machinery against a
// cross-covariance: posterior mean through alpha, explained variance through
// the smoothed inverse, total variance as the prior remainder, and — when
// nSim > 0 — correlated posterior samples mapped through the residual
// factor. Mapping the seed noise through cholR reproduces the coupling
// between inducing points instead of sampling each query point
// independently.
func (g *BasicGP) predictFromCross(cross *mat.Dense, nSim int, seed Seed) *Prediction {
	return gpPredictFromCross(g.size, g.alpha, g.covSmoothInv, g.cholR, cross, nSim, seed)
}

func gpPredictFromCross(size int, alpha []*mat.VecDense, covSmoothInv, cholR []*mat.Dense,
	cross *mat.Dense, nSim int, seed Seed) *Prediction {
	n, m := cross.Dims()
	pred := &Prediction{
		Mean:              zeros(size, n),
		Variance:          zeros(size, n),
		ExplainedVariance: zeros(size, n),
	}
	if nSim > 0 {
		pred.Simulations = make([]*mat.Dense, nSim)
		for k := 0; k < nSim; k++ {
			pred.Simulations[k] = zeros(size, n)
		}
	}

	rng := seed.rng()
	for s := 0; s < size; s++ {
		mu := mulVec(cross, alpha[s])
		explained := rowDot(matMul(cross, covSmoothInv[s]), cross)
		for i := 0; i < n; i++ {
			pred.Mean.Set(s, i, mu.AtVec(i))
			pred.ExplainedVariance.Set(s, i, explained[i])
			pred.Variance.Set(s, i, math.Max(1-explained[i], 0))
		}
		if nSim > 0 {
			rnd := normals(rng, m, nSim)
			spread := matMul(cross, matMul(cholR[s], rnd))
			for k := 0; k < nSim; k++ {
				for i := 0; i < n; i++ {
					pred.Simulations[k].Set(s, i, mu.AtVec(i)+spread.At(i, k))
				}
			}
		}
	}
	return pred
}

func (g *BasicGP) PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction {
	cm := g.cm()
	cross := transpose(cm.crossD1(g.parent(), x, dirX, nil, step))
	n, _ := cross.Dims()

	out := &DirectionalPrediction{
		Mean:              zeros(g.size, n),
		Variance:          zeros(g.size, n),
		ExplainedVariance: zeros(g.size, n),
	}
	pointVar := cm.pointVarianceD2(g.parent(), x, dirX, step, g.size)
	for s := 0; s < g.size; s++ {
		mu := mulVec(cross, g.alpha[s])
		explained := rowDot(matMul(cross, g.covSmoothInv[s]), cross)
		for i := 0; i < n; i++ {
			out.Mean.Set(s, i, mu.AtVec(i))
			out.ExplainedVariance.Set(s, i, explained[i])
			out.Variance.Set(s, i, math.Max(pointVar.At(s, i)-explained[i], 0))
		}
	}
	return out
}

// KLDivergence is the analytic divergence between the whitened variational
// posterior and the GP prior, summed over output dimensions.
func (g *BasicGP) KLDivergence() float64 {
	if g.cov == nil {
		exceptions.Panicf("latent.BasicGP: KLDivergence before Refresh")
	}
	return gpKL(g.cov, g.covSmoothInv, g.covSmoothLogDet,
		g.set.Get("alpha_white").Value(), g.set.Get("delta").Transformed())
}

// gpKL evaluates 0.5·(−tr(covSmoothInv·cov) + Σ alphaWhite² +
// logdet(covSmooth) − Σ log delta). deltaLog carries log-space delta values
// directly (the positive parameter's transformed representation).
func gpKL(cov *mat.Dense, covSmoothInv []*mat.Dense, logDets []float64,
	alphaWhite, deltaLog []float64) float64 {
	trace := 0.0
	for s := range covSmoothInv {
		trace += matDot(covSmoothInv[s], cov)
	}
	fit := 0.0
	for _, v := range alphaWhite {
		fit += v * v
	}
	det1 := 0.0
	for _, d := range logDets {
		det1 += d
	}
	det2 := 0.0
	for _, v := range deltaLog {
		det2 += v
	}
	return 0.5 * (-trace + fit + det1 - det2)
}

func (g *BasicGP) Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	return propagateThrough(g, x, xVar)
}

// Gradient wraps this GP's directional derivative field as a node of size
// size×rootSize.
func (g *BasicGP) Gradient() *GPGradient {
	return newGPGradient(g)
}

// matDot is the elementwise (Frobenius) dot product of two equal-shape
// matrices.
func matDot(a, b *mat.Dense) float64 {
	vals := rowDot(a, b)
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum
}
