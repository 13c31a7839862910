// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evaluation measures how well a scorer predicts reference
// translations.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/sliceutils"
	"github.com/rs/zerolog/log"
)

// Example is an encoded source sentence with its reference translation,
// which starts with the begin marker.
type Example struct {
	Source []int
	Target []int
}

// Result reports the next-token metrics of a scorer fed with reference prefixes.
type Result struct {
	// Accuracy maps each k to the fraction of reference tokens found among
	// the k most probable tokens.
	Accuracy map[int]float64
	// Loss is the mean negative log-likelihood of the reference tokens.
	Loss float64
	// Tokens is the number of reference tokens evaluated.
	Tokens int
}

// TopKAccuracy feeds the scorer with every prefix of each reference target
// and checks whether the next reference token is among the k most probable
// ones, for each of the given ks. Padding tokens are not evaluated.
// All the prefixes of an example are scored in a single batch.
func TopKAccuracy(ctx context.Context, scorer decoder.Scorer, examples []Example, pad int, ks ...int) (Result, error) {
	maxK := 0
	for _, k := range ks {
		if k < 1 {
			return Result{}, fmt.Errorf("k must be >= 1, got %d", k)
		}
		if k > maxK {
			maxK = k
		}
	}

	hits := make(map[int]int, len(ks))
	var nll float64
	total := 0

	for n, ex := range examples {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if len(ex.Target) < 2 {
			continue
		}

		sources := make([][]int, 0, len(ex.Target)-1)
		prefixes := make([][]int, 0, len(ex.Target)-1)
		for i := 1; i < len(ex.Target); i++ {
			sources = append(sources, ex.Source)
			prefixes = append(prefixes, ex.Target[:i])
		}
		dists, err := scorer.Score(ctx, sources, prefixes)
		if err != nil {
			return Result{}, fmt.Errorf("example %d: %w", n, err)
		}
		if len(dists) != len(prefixes) {
			return Result{}, fmt.Errorf("example %d: expected %d distributions, got %d", n, len(prefixes), len(dists))
		}

		for i, dist := range dists {
			ref := ex.Target[i+1]
			if ref == pad {
				continue
			}
			total++
			if ref >= 0 && ref < len(dist) {
				nll -= math.Log(dist[ref])
			} else {
				nll = math.Inf(1)
			}
			rank := rankOf(dist, ref, maxK)
			for _, k := range ks {
				if rank >= 0 && rank < k {
					hits[k]++
				}
			}
		}
	}

	res := Result{Accuracy: make(map[int]float64, len(ks)), Tokens: total}
	for _, k := range ks {
		if total > 0 {
			res.Accuracy[k] = float64(hits[k]) / float64(total)
		}
	}
	if total > 0 {
		res.Loss = nll / float64(total)
	}
	log.Debug().Msgf("Evaluated %d tokens of %d examples: %v", total, len(examples), res.Accuracy)
	return res, nil
}

// rankOf returns the position of token among the maxK most probable tokens
// of the distribution, or -1. Equal probabilities keep the lower token first.
func rankOf(dist []float64, token, maxK int) int {
	probs := make([]float64, len(dist))
	copy(probs, dist)
	s := sliceutils.NewIndexedSlice(probs)
	sort.Stable(sort.Reverse(s))
	for i := 0; i < maxK && i < len(s.Indices); i++ {
		if s.Indices[i] == token {
			return i
		}
	}
	return -1
}
