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

package params

import "github.com/gomlx/exceptions"

// Owner is anything that exposes trainable parameters: latent nodes,
// transforms, likelihoods. Registration is explicit — there is no global
// parameter registry.
type Owner interface {
	AllParameters() []*Param
}

// Set holds the parameters owned by one object plus, in registration order,
// every parameter reachable through registered children. Optimizers consume
// the flattened view through TrainableValues/SetTrainableValues.
type Set struct {
	named map[string]*Param
	all   []*Param
}

// NewSet creates an empty parameter set.
func NewSet() *Set {
	return &Set{named: make(map[string]*Param)}
}

// Add stores p under its name as owned by this set and returns it.
func (s *Set) Add(p *Param) *Param {
	if _, found := s.named[p.Name()]; found {
		exceptions.Panicf("params.Set: duplicate parameter %q", p.Name())
	}
	s.named[p.Name()] = p
	s.all = append(s.all, p)
	return p
}

// Register appends every parameter reachable through the child owner to the
// flattened traversal, without claiming ownership of them.
func (s *Set) Register(child Owner) {
	s.all = append(s.all, child.AllParameters()...)
}

// Get returns the owned parameter with the given name, or panics if absent.
func (s *Set) Get(name string) *Param {
	p, found := s.named[name]
	if !found {
		exceptions.Panicf("params.Set: unknown parameter %q", name)
	}
	return p
}

// Has reports whether an owned parameter with the given name exists.
func (s *Set) Has(name string) bool {
	_, found := s.named[name]
	return found
}

// All returns the full flattened traversal: owned parameters plus every
// registered child's, in registration order. The slice is shared; callers
// must not modify it.
func (s *Set) All() []*Param {
	return s.all
}

// TrainableValues flattens all non-fixed parameters into a single
// transformed-space vector, with matching bounds vectors.
func (s *Set) TrainableValues() (values, minT, maxT []float64) {
	for _, p := range s.all {
		if p.Fixed() {
			continue
		}
		values = append(values, p.value...)
		minT = append(minT, p.minT...)
		maxT = append(maxT, p.maxT...)
	}
	return
}

// SetTrainableValues writes a flat transformed-space vector back into the
// non-fixed parameters, refreshing each so every stored value is feasible.
// The vector length must match TrainableValues exactly.
func (s *Set) SetTrainableValues(values []float64) {
	offset := 0
	for _, p := range s.all {
		if p.Fixed() {
			continue
		}
		n := len(p.value)
		if offset+n > len(values) {
			exceptions.Panicf("params.Set: flat vector too short (%d values)", len(values))
		}
		copy(p.value, values[offset:offset+n])
		p.Refresh()
		offset += n
	}
	if offset != len(values) {
		exceptions.Panicf("params.Set: flat vector has %d values, want %d",
			len(values), offset)
	}
}

// NumTrainable returns the number of scalar entries across non-fixed
// parameters.
func (s *Set) NumTrainable() int {
	n := 0
	for _, p := range s.all {
		if !p.Fixed() {
			n += len(p.value)
		}
	}
	return n
}
