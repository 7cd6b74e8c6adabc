// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package cache

import (
	"hash/fnv"
	"math"
	"math/bits"
	"sync"
)

// BloomFilter is a probabilistic set membership structure.
//
// Key characteristics:
//   - No false negatives: if Test() returns false, the item was never added
//   - Possible false positives at the configured rate
//   - ~10 bits per element for a 1% false positive rate
//   - Items cannot be removed
//
// The detection engine uses it to estimate distinct fingerprints for the
// status endpoint without holding the full seen-set in memory.
type BloomFilter struct {
	mu       sync.RWMutex
	bits     []uint64
	size     uint64 // number of bits
	hashFns  int
	count    int
	capacity int
}

// NewBloomFilter creates a filter sized for expectedItems at the target
// false positive rate (e.g. 0.01 for 1%).
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n*ln(p)/ln(2)^2 bits, k = (m/n)*ln(2) hash functions.
	ln2 := math.Ln2
	m := int(-float64(expectedItems) * math.Log(falsePositiveRate) / (ln2 * ln2))
	if m < 64 {
		m = 64
	}

	k := int(float64(m) / float64(expectedItems) * ln2)
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	words := (m + 63) / 64

	return &BloomFilter{
		bits:     make([]uint64, words),
		size:     uint64(words * 64),
		hashFns:  k,
		capacity: expectedItems,
	}
}

// Add adds an item to the filter.
func (bf *BloomFilter) Add(key string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	for _, h := range bf.hashes(key) {
		idx := h % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
	bf.count++
}

// Test reports whether an item might be in the filter. A false result is
// definitive; a true result must be treated as "possibly seen".
func (bf *BloomFilter) Test(key string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	for _, h := range bf.hashes(key) {
		idx := h % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// AddAndTest adds an item and reports whether it was possibly already
// present, combining Test and Add under one lock.
func (bf *BloomFilter) AddAndTest(key string) bool {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	hashes := bf.hashes(key)

	allSet := true
	for _, h := range hashes {
		idx := h % bf.size
		if bf.bits[idx/64]&(1<<(idx%64)) == 0 {
			allSet = false
			break
		}
	}

	for _, h := range hashes {
		idx := h % bf.size
		bf.bits[idx/64] |= 1 << (idx % 64)
	}
	bf.count++

	return allSet
}

// Clear resets the filter.
func (bf *BloomFilter) Clear() {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	for i := range bf.bits {
		bf.bits[i] = 0
	}
	bf.count = 0
}

// Count returns the number of Add calls (duplicates included).
func (bf *BloomFilter) Count() int {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.count
}

// FillRatio returns the fraction of set bits, a saturation indicator.
func (bf *BloomFilter) FillRatio() float64 {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	setBits := 0
	for _, word := range bf.bits {
		setBits += bits.OnesCount64(word)
	}
	return float64(setBits) / float64(bf.size)
}

// hashes derives k hash values via double hashing: h(i) = h1 + i*h2.
func (bf *BloomFilter) hashes(key string) []uint64 {
	h1 := fnv.New64a()
	h1.Write([]byte(key))
	hash1 := h1.Sum64()

	h2 := fnv.New64()
	h2.Write([]byte(key))
	h2.Write([]byte{0xff})
	hash2 := h2.Sum64()

	hashes := make([]uint64, bf.hashFns)
	for i := 0; i < bf.hashFns; i++ {
		hashes[i] = hash1 + uint64(i)*hash2
	}
	return hashes
}
