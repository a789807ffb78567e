// Package dedupe holds the two black-box contracts the collision-resolution
// pipeline is built around: a locality-sensitive hashing function H and a
// similarity predicate S. Both are expressed as interfaces so the pipeline
// never depends on a concrete implementation; this package also ships one
// reference implementation of each for callers who don't want to supply
// their own.
package dedupe

import "github.com/erigontech/geodedupe/internal/address"

// Hasher computes the finite set of locality-sensitive fingerprints for an
// address. It is a total function: every address, however sparse, produces
// a (possibly empty) slice. An empty result is a warning condition handled
// by the insertion pipeline, not an error here.
type Hasher interface {
	Hash(a address.Address) []address.Hash
}

// Similarity decides whether two addresses describe the same real-world
// location. It must be deterministic, reflexive and symmetric, but is
// explicitly NOT required to be transitive: a pack must never be resolved
// by collapsing it through transitive closure, since similarity chains
// (A~B, B~C) don't imply A~C.
type Similarity interface {
	Similar(a, b address.Address) bool
}

// HasherFunc adapts a plain function to Hasher.
type HasherFunc func(a address.Address) []address.Hash

// Hash implements Hasher.
func (f HasherFunc) Hash(a address.Address) []address.Hash { return f(a) }

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(a, b address.Address) bool

// Similar implements Similarity.
func (f SimilarityFunc) Similar(a, b address.Address) bool { return f(a, b) }
