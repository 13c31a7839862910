// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
	"math"

	"github.com/nlpodyssey/beamflow/sliceutils"
)

// sumTolerance is the maximum distance from 1 allowed for the sum of a
// probability distribution returned by a scorer.
const sumTolerance = 1e-3

// candidate is a possible next token with its conditional probability.
type candidate struct {
	token int
	prob  float64
}

// candidateLess reports whether a ranks below b: lower probability first,
// and higher token ID among equal probabilities.
func candidateLess(a, b candidate) bool {
	if a.prob != b.prob {
		return a.prob < b.prob
	}
	return a.token > b.token
}

// topCandidates returns the k most probable tokens of the distribution, most
// probable first, the lowest ID winning ties. Zero probability tokens are
// returned too when fewer than k tokens have a positive probability.
func topCandidates(probs []float64, k int) []candidate {
	top := sliceutils.NewTopN(k, candidateLess)
	for token, p := range probs {
		top.Push(candidate{token: token, prob: p})
	}
	return top.Sorted()
}

// argmax returns the most probable token, the lowest ID winning ties.
func argmax(probs []float64) candidate {
	best := candidate{token: -1, prob: math.Inf(-1)}
	for token, p := range probs {
		if p > best.prob {
			best = candidate{token: token, prob: p}
		}
	}
	return best
}

// checkDistributions verifies that the scorer returned one valid probability
// distribution per hypothesis, all over the same vocabulary.
func checkDistributions(dists [][]float64, batchSize int) error {
	if len(dists) != batchSize {
		return fmt.Errorf("%w: expected %d distributions, got %d", ErrScorerFailure, batchSize, len(dists))
	}
	size := -1
	for i, dist := range dists {
		if len(dist) == 0 {
			return fmt.Errorf("%w: empty distribution at row %d", ErrScorerFailure, i)
		}
		if size >= 0 && len(dist) != size {
			return fmt.Errorf("%w: distribution at row %d has size %d, expected %d", ErrScorerFailure, i, len(dist), size)
		}
		size = len(dist)

		var sum float64
		for token, p := range dist {
			if math.IsNaN(p) || math.IsInf(p, 0) {
				return fmt.Errorf("%w: invalid probability %v for token %d at row %d", ErrScorerFailure, p, token, i)
			}
			if p < 0 {
				return fmt.Errorf("%w: negative probability %v for token %d at row %d", ErrScorerFailure, p, token, i)
			}
			sum += p
		}
		if math.Abs(sum-1) > sumTolerance {
			return fmt.Errorf("%w: distribution at row %d sums to %v", ErrScorerFailure, i, sum)
		}
	}
	return nil
}
