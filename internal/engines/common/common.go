// Package common holds the encoding operators shared by the stochastic placement engines:
// seeded random sources, feasibility repair and decoding of candidate encodings into
// exactly K server sites.
package common

import (
	"math/rand"
	"sort"
	"time"
)

// NewRand returns a generator seeded with seed, or with the current time when seed is nil.
func NewRand(seed *int64) *rand.Rand {
	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	return rand.New(rand.NewSource(s))
}

// Repair makes selection hold exactly k ones, in place, and returns it. Surplus ones are
// cleared and missing ones are set on uniformly sampled indices; a selection that already
// holds k ones is returned untouched.
func Repair(selection []int, k int, rng *rand.Rand) []int {
	var ones, zeros []int
	for i, bit := range selection {
		if bit == 1 {
			ones = append(ones, i)
		} else {
			zeros = append(zeros, i)
		}
	}
	switch {
	case len(ones) > k:
		for _, i := range sample(ones, len(ones)-k, rng) {
			selection[i] = 0
		}
	case len(ones) < k:
		for _, i := range sample(zeros, k-len(ones), rng) {
			selection[i] = 1
		}
	}
	return selection
}

// sample draws m distinct entries of from with a partial Fisher-Yates pass. from is reordered.
func sample(from []int, m int, rng *rand.Rand) []int {
	if m > len(from) {
		m = len(from)
	}
	for i := 0; i < m; i++ {
		j := i + rng.Intn(len(from)-i)
		from[i], from[j] = from[j], from[i]
	}
	return from[:m]
}

// ContinuousToBinary selects the k largest entries of values. Ties are broken by index so
// the result always holds exactly k ones.
func ContinuousToBinary(values []float64, k int) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})
	binary := make([]int, len(values))
	for _, idx := range order[len(order)-k:] {
		binary[idx] = 1
	}
	return binary
}

// TopKByScore returns the k candidates with the highest score in ascending index order.
// Equal scores prefer the lower index.
func TopKByScore(candidates []int, scores []float64, k int) []int {
	ranked := append([]int(nil), candidates...)
	sort.Ints(ranked)
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	top := append([]int(nil), ranked[:k]...)
	sort.Ints(top)
	return top
}

// SampleSites draws k distinct indices out of [0,n) in ascending order.
func SampleSites(n, k int, rng *rand.Rand) []int {
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	sites := append([]int(nil), sample(all, k, rng)...)
	sort.Ints(sites)
	return sites
}

// ToBinary expands sites into a 0/1 selection vector of length n.
func ToBinary(sites []int, n int) []int {
	binary := make([]int, n)
	for _, s := range sites {
		binary[s] = 1
	}
	return binary
}
