// Package sampling provides O(1) weighted sampling with Walker's alias method.
package sampling

import (
	"math"
	"math/rand"
)

// aliasEntry is one bucket of an alias table
type aliasEntry struct {
	alias int64
	prob  float64
}

// AliasTable samples indices proportionally to a (power transformed) distribution
type AliasTable struct {
	entries []aliasEntry
}

// NewAliasTable builds an alias table over distribution raised to power.
// A power of 0 yields a uniform sampler; 0.75 is the usual unigram smoothing.
// An all-zero distribution falls back to uniform sampling.
func NewAliasTable(distribution []float64, power float64) *AliasTable {
	n := len(distribution)
	entries := make([]aliasEntry, n)
	if n == 0 {
		return &AliasTable{entries: entries}
	}

	// Apply power transformation and normalize
	sum := 0.0
	norm := make([]float64, n)
	for i := 0; i < n; i++ {
		if distribution[i] > 0 {
			norm[i] = math.Pow(distribution[i], power)
		}
		sum += norm[i]
	}

	if sum == 0 {
		for i := 0; i < n; i++ {
			entries[i] = aliasEntry{alias: int64(i), prob: 1.0}
		}
		return &AliasTable{entries: entries}
	}

	for i := 0; i < n; i++ {
		norm[i] = norm[i] * float64(n) / sum
	}

	// Vose's alias method
	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if norm[i] < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]

		g := large[len(large)-1]
		large = large[:len(large)-1]

		entries[l] = aliasEntry{alias: int64(g), prob: norm[l]}

		norm[g] = norm[g] + norm[l] - 1.0
		if norm[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}

	// leftovers are numerically 1
	for _, g := range large {
		entries[g] = aliasEntry{alias: int64(g), prob: 1.0}
	}
	for _, l := range small {
		entries[l] = aliasEntry{alias: int64(l), prob: 1.0}
	}

	return &AliasTable{entries: entries}
}

// Len returns the number of outcomes
func (at *AliasTable) Len() int {
	return len(at.entries)
}

// Sample draws one index, or -1 for an empty table
func (at *AliasTable) Sample(rng *rand.Rand) int64 {
	n := len(at.entries)
	if n == 0 {
		return -1
	}

	i := rng.Intn(n)
	if rng.Float64() < at.entries[i].prob {
		return int64(i)
	}
	return at.entries[i].alias
}
