package services

import (
	"math/rand"
	"sync"
	"time"
)

// ShuffleEngine produces randomized presentation permutations for questions
// and options. It is stateless apart from its random source; permutations
// are computed once at attempt creation and persisted, never recomputed on
// read. One engine is shared by all in-flight requests, so access to the
// source is serialized (rand.Rand itself is not safe for concurrent use).
type ShuffleEngine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewShuffleEngine() *ShuffleEngine {
	return &ShuffleEngine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewShuffleEngineWithSeed allows deterministic permutations in tests.
func NewShuffleEngineWithSeed(seed int64) *ShuffleEngine {
	return &ShuffleEngine{rng: rand.New(rand.NewSource(seed))}
}

// Permutation returns indices 0..n-1. When shuffled is false the identity
// permutation comes back; otherwise a uniformly random one (Fisher-Yates).
// Only display order changes - callers index the original sequence through
// the result, so the pairing between an option's text and its correctness is
// untouched.
func (s *ShuffleEngine) Permutation(n int, shuffled bool) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if !shuffled {
		return perm
	}
	s.mu.Lock()
	s.rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	s.mu.Unlock()
	return perm
}

// applyPermutation reorders items by perm. An empty or mismatched perm
// (e.g. attempts created before option counts changed) returns items as-is.
func applyPermutation[T any](items []T, perm []int) []T {
	if len(perm) != len(items) {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	out := make([]T, len(items))
	for pos, idx := range perm {
		if idx < 0 || idx >= len(items) {
			copy(out, items)
			return out
		}
		out[pos] = items[idx]
	}
	return out
}
