// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bloom implements the probabilistic symbol-membership filter the
// loader uses to prune archive members before a full symbol table scan.
//
// The filter has no false negatives: if a name was inserted, Contains
// reports true for it.
package bloom

import "math"

// falsePositiveRate is the design false-positive target the bit count is
// sized for.
const falsePositiveRate = 0.001

// The two FNV-1a offset bases that key the independent hash pair.
const (
	fnvKey1 = 0xcbf29ce484222325
	fnvKey2 = 0x84222325b444f000
)

const fnvPrime = 0x100000001b3

// A Filter is a fixed-size bloom filter keyed by a pair of FNV-1a hashes.
type Filter struct {
	bits []uint64
	n    int // bit count
}

// New returns a filter sized for numItems entries at the design
// false-positive rate.
func New(numItems int) *Filter {
	n := neededBits(falsePositiveRate, numItems)
	if n < 1 {
		n = 1
	}
	return &Filter{bits: make([]uint64, (n+63)/64), n: n}
}

func neededBits(falsePosRate float64, numItems int) int {
	ln22 := math.Ln2 * math.Ln2
	return int(math.Round(float64(numItems) * math.Log(1/falsePosRate) / ln22))
}

// Hash returns the two independent hashes of name that key every filter.
func Hash(name []byte) [2]uint64 {
	return [2]uint64{fnv1a(fnvKey1, name), fnv1a(fnvKey2, name)}
}

// fnv1a is FNV-1a with a caller-supplied offset basis. hash/fnv hard-codes
// the standard basis, so the fold is written out here.
func fnv1a(basis uint64, b []byte) uint64 {
	h := basis
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

// Insert records a hash pair in the filter.
func (f *Filter) Insert(nh [2]uint64) {
	f.set(int(nh[0] % uint64(f.n)))
	f.set(int(nh[1] % uint64(f.n)))
}

// Contains reports whether the hash pair may have been inserted. False
// positives are possible; false negatives are not.
func (f *Filter) Contains(nh [2]uint64) bool {
	return f.get(int(nh[0]%uint64(f.n))) && f.get(int(nh[1]%uint64(f.n)))
}

func (f *Filter) set(i int) {
	f.bits[i/64] |= 1 << (i % 64)
}

func (f *Filter) get(i int) bool {
	return f.bits[i/64]&(1<<(i%64)) != 0
}
