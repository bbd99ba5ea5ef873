// Package bloom provides per-column membership filters used by the storage
// engine to skip full scans for equality predicates over values that were
// never inserted. A filter admits false positives but never false
// negatives, so a filtered scan returns exactly the rows an unfiltered scan
// would.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/jbdura/settlement-project/pkg/types"
)

// Filter is a bloom filter over the canonical keys of one column's values.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64 // number of values added
}

// New creates a Filter with the specified number of bits and hash functions.
func New(numBits, numHashes int) *Filter {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}

	// Round up to nearest 64 bits for efficient storage
	numWords := (numBits + 63) / 64
	actualBits := uint64(numWords * 64)

	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   actualBits,
		numHashes: uint64(numHashes),
	}
}

// NewWithEstimates creates a Filter sized for the expected number of values
// and target false positive rate.
func NewWithEstimates(expectedItems int, targetFPR float64) *Filter {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	numBits, numHashes := OptimalParameters(expectedItems, targetFPR)
	return New(numBits, numHashes)
}

// OptimalParameters calculates the optimal number of bits and hash functions
// for a given expected number of items and target false positive rate.
//
// The formulas are:
//   - m = -n * ln(p) / (ln(2)^2)  where m = bits, n = items, p = FPR
//   - k = (m/n) * ln(2)           where k = hash functions
func OptimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	p := targetFPR
	ln2 := math.Ln2
	ln2Sq := ln2 * ln2

	// m = -n * ln(p) / (ln(2)^2)
	m := -n * math.Log(p) / ln2Sq
	numBits = int(math.Ceil(m))

	// k = (m/n) * ln(2)
	k := (m / n) * ln2
	numHashes = int(math.Ceil(k))

	// Ensure minimum values
	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}

	return numBits, numHashes
}

// Add records a column value. NULL is never recorded; absence is not a
// value and null-equality scans bypass the filter.
func (f *Filter) Add(v types.Value) {
	if v.IsNull() {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	h1, h2 := hash128([]byte(v.Key()))

	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.setBit(pos)
	}
	f.count++
}

// MightContain tests whether a value may have been added. True may be a
// false positive; false means the value was definitely never added. NULL
// always reports true so that null-equality scans are never skipped.
func (f *Filter) MightContain(v types.Value) bool {
	if v.IsNull() {
		return true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	h1, h2 := hash128([]byte(v.Key()))

	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if !f.getBit(pos) {
			return false
		}
	}
	return true
}

// Reset clears the filter so it can be rebuilt from a row set.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.bits {
		f.bits[i] = 0
	}
	f.count = 0
}

// hash128 computes murmur3 128-bit hash and returns two 64-bit values.
func hash128(item []byte) (uint64, uint64) {
	h := murmur3.New128()
	h.Write(item)
	return h.Sum128()
}

// setBit sets the bit at position pos.
func (f *Filter) setBit(pos uint64) {
	wordIdx := pos / 64
	bitIdx := pos % 64
	f.bits[wordIdx] |= (1 << bitIdx)
}

// getBit returns true if the bit at position pos is set.
func (f *Filter) getBit(pos uint64) bool {
	wordIdx := pos / 64
	bitIdx := pos % 64
	return (f.bits[wordIdx] & (1 << bitIdx)) != 0
}

// NumBits returns the number of bits in the filter.
func (f *Filter) NumBits() int {
	return int(f.numBits)
}

// NumHashes returns the number of hash functions used.
func (f *Filter) NumHashes() int {
	return int(f.numHashes)
}

// Count returns the number of values added to the filter.
func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FalsePositiveRate returns the estimated false positive rate based on
// the current fill ratio.
//
// Formula: (1 - e^(-k*n/m))^k
// where k = numHashes, n = count, m = numBits
func (f *Filter) FalsePositiveRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.count == 0 {
		return 0
	}

	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)

	// (1 - e^(-k*n/m))^k
	return math.Pow(1-math.Exp(-k*n/m), k)
}
