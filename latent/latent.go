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

// Package latent implements a composable network of latent variables for
// sparse variational Gaussian process models over spatial coordinates.
//
// A model is a directed acyclic graph of nodes: a single input (root) node
// transforming raw coordinates into the base feature space, sparse GP nodes
// parameterized at a fixed set of inducing points, and algebraic combinators
// (sums, products, linear projections, mixtures) composing them into a
// non-stationary, possibly multi-output random function. Nodes sharing an
// ancestor share it literally — the same node value appears in both paths,
// and KL-divergence accounting deduplicates it.
//
// Every node implements the same five-operation contract:
//
//   - Refresh recomputes the node's inducing-point posterior from the
//     current parameter values, recursing into parents first. It must be
//     called before any query, and again after every parameter write.
//   - Predict evaluates posterior mean, variance, explained variance and
//     (optionally) correlated posterior samples at arbitrary coordinates.
//   - PredictDirections evaluates the directional derivative of the field
//     along per-point directions, by symmetric central finite differences.
//   - KLDivergence returns this node's contribution to the variational
//     complexity penalty (zero for all deterministic nodes).
//   - Propagate pushes coordinates (and their variance, when uncertain)
//     through the node, feeding downstream GP layers.
//
// Evaluation is single-threaded and recursive: Refresh completes for all
// ancestors before a node's own body runs, and Predict/PredictDirections/
// KLDivergence are read-only over the latest Refresh snapshot. There is no
// caching across Refresh calls; each one fully recomputes from the current
// parameter values.
//
// Shapes: coordinates and propagated moments are n×d matrices with rows as
// points; predictions are size×n with rows as output dimensions.
package latent

import (
	"github.com/geogp/geogp/params"
	"github.com/geogp/geogp/pointset"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultJitter is the diagonal regularizer added before every Cholesky
// factorization. Pass it to Refresh unless the model needs a larger one.
const DefaultJitter = 1e-9

// DefaultStep is the finite-difference step used for directional
// derivatives when no explicit step is given.
const DefaultStep = 1e-3

// Seed identifies a reproducible stream of standard normal draws. Fan-out
// combinators derive a distinct stream per branch with Branch, so a DAG with
// shared parents samples consistently without global random state.
type Seed struct {
	Lo, Hi int64
}

// Branch derives the seed for the i-th parent branch.
func (s Seed) Branch(i int) Seed {
	return Seed{Lo: s.Lo + int64(i), Hi: s.Hi}
}

// rng returns the deterministic generator for this seed.
func (s Seed) rng() *rand.Rand {
	state := uint64(s.Lo)*0x9E3779B97F4A7C15 + uint64(s.Hi)
	// Avoid the all-zeros state of the default source.
	state += 0x2545F4914F6CDD1D
	return rand.New(rand.NewSource(state))
}

// normals draws rows×cols standard normal deviates as a matrix, in a fixed
// row-major order.
func normals(rng *rand.Rand, rows, cols int) *mat.Dense {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, normal.Rand())
		}
	}
	return out
}

// Prediction is the result of Node.Predict. All matrices are size×n.
// Simulations is nil when the prediction was requested with nSim == 0;
// otherwise it holds one size×n matrix per correlated posterior sample.
type Prediction struct {
	Mean              *mat.Dense
	Variance          *mat.Dense
	ExplainedVariance *mat.Dense
	Simulations       []*mat.Dense
}

// DirectionalPrediction is the result of Node.PredictDirections. All
// matrices are size×n.
type DirectionalPrediction struct {
	Mean              *mat.Dense
	Variance          *mat.Dense
	ExplainedVariance *mat.Dense
}

// Node is the five-operation contract every latent variable implements.
//
// The set of implementations is closed: all nodes live in this package and
// fall into four kinds — the root input, functional wrappers of a single
// parent, operations over several parents, and the gradient wrapper.
type Node interface {
	params.Owner

	// Size returns the node's output dimensionality, fixed at construction.
	Size() int

	// Root returns the unique input node reachable from this node.
	Root() *BasicInput

	// Parents returns the node's parents in construction order. Empty only
	// for the root.
	Parents() []Node

	// Children returns back-references to dependent nodes. Bookkeeping
	// only; computation never traverses children.
	Children() []Node

	// UniqueParents returns the deduplicated set of strict ancestors. A
	// node reachable through several paths appears exactly once.
	UniqueParents() []Node

	// SetParameterLimits propagates bounding-box information from a
	// coordinate dataset down to root/transform parameters.
	SetParameterLimits(ps *pointset.Points)

	// InducingPoints returns the posterior mean of this node's function at
	// the network's inducing locations, as an nInducing×size matrix. Nil
	// until the first Refresh.
	InducingPoints() *mat.Dense

	// InducingPointsVariance returns the matching posterior variance.
	InducingPointsVariance() *mat.Dense

	// Refresh recomputes the posterior state from current parameter
	// values, recursing into parents first. jitter is added to diagonals
	// before every Cholesky factorization.
	Refresh(jitter float64)

	// Predict evaluates the posterior at the n×d coordinate matrix x.
	// xVar may be nil (noiseless inputs). When nSim > 0 the returned
	// Prediction carries correlated posterior samples drawn from seed.
	Predict(x, xVar *mat.Dense, nSim int, seed Seed) *Prediction

	// PredictDirections evaluates the directional derivative of the field
	// at x along the per-point directions dirX (same shape as x), using a
	// symmetric central finite difference with the given step.
	PredictDirections(x, dirX *mat.Dense, step float64) *DirectionalPrediction

	// KLDivergence returns this node's own KL term. Use TotalKL for a
	// whole network.
	KLDivergence() float64

	// Propagate pushes coordinates and their variance through the node,
	// returning n×size mean and variance matrices.
	Propagate(x, xVar *mat.Dense) (mean, variance *mat.Dense)

	// addChild seals the interface to this package.
	addChild(child Node)
}

// TotalKL sums the KL divergence over the node and its deduplicated
// ancestors, counting each unique node exactly once.
func TotalKL(node Node) float64 {
	total := node.KLDivergence()
	for _, p := range node.UniqueParents() {
		total += p.KLDivergence()
	}
	return total
}

// baseNode carries the bookkeeping shared by every node kind.
type baseNode struct {
	size     int
	root     *BasicInput
	parents  []Node
	children []Node
	set      *params.Set

	inducingPoints         *mat.Dense
	inducingPointsVariance *mat.Dense
}

func newBaseNode(size int, root *BasicInput, parents ...Node) baseNode {
	return baseNode{
		size:    size,
		root:    root,
		parents: parents,
		set:     params.NewSet(),
	}
}

func (b *baseNode) Size() int                           { return b.size }
func (b *baseNode) Root() *BasicInput                   { return b.root }
func (b *baseNode) Parents() []Node                     { return b.parents }
func (b *baseNode) Children() []Node                    { return b.children }
func (b *baseNode) InducingPoints() *mat.Dense          { return b.inducingPoints }
func (b *baseNode) InducingPointsVariance() *mat.Dense  { return b.inducingPointsVariance }
func (b *baseNode) AllParameters() []*params.Param      { return b.set.All() }
func (b *baseNode) addChild(child Node)                 { b.children = append(b.children, child) }

// Params exposes the node's own parameter set, for inspection and for
// optimizers collecting the trainable surface node by node.
func (b *baseNode) Params() *params.Set { return b.set }

// uniqueParents computes the deduplicated ancestor set of a node by
// set-union over the parents' ancestor sets, preserving first-visit order
// so traversals are deterministic.
func uniqueParents(n Node) []Node {
	return uniqueAncestors(n.Parents())
}

func uniqueAncestors(parents []Node) []Node {
	seen := make(map[Node]bool)
	var out []Node
	var visit func(parent Node)
	visit = func(parent Node) {
		if seen[parent] {
			return
		}
		seen[parent] = true
		out = append(out, parent)
		for _, gp := range parent.Parents() {
			visit(gp)
		}
	}
	for _, p := range parents {
		visit(p)
	}
	return out
}

// refreshParents is the strict bottom-up ordering: every parent completes
// its Refresh before the caller's own body runs.
func refreshParents(n Node, jitter float64) {
	for _, p := range n.Parents() {
		p.Refresh(jitter)
	}
}

// propagateThrough implements Propagate for nodes whose forward pass is
// their own Predict: evaluate moments with no simulations and transpose into
// the n×size propagation layout.
func propagateThrough(n Node, x, xVar *mat.Dense) (mean, variance *mat.Dense) {
	pred := n.Predict(x, xVar, 0, Seed{})
	return transpose(pred.Mean), transpose(pred.Variance)
}
