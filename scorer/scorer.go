// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scorer provides building blocks for the next-token probability
// models queried by the decoder.
package scorer

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/spago/mat"
	"golang.org/x/sync/errgroup"
)

// RowScorer is the interface that wraps the ScoreRow method.
//
// ScoreRow returns the probability distribution of the next target token
// given a source sequence and a target prefix.
type RowScorer interface {
	ScoreRow(ctx context.Context, source, prefix []int) ([]float64, error)
}

// Func is an adapter to allow the use of ordinary functions as row scorers.
// A Func also scores whole batches, one row after the other.
type Func func(ctx context.Context, source, prefix []int) ([]float64, error)

var _ decoder.Scorer = Func(nil)

// ScoreRow calls f(ctx, source, prefix).
func (f Func) ScoreRow(ctx context.Context, source, prefix []int) ([]float64, error) {
	return f(ctx, source, prefix)
}

// Score scores each row of the batch in order.
func (f Func) Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error) {
	if len(sources) != len(prefixes) {
		return nil, fmt.Errorf("batch size mismatch: %d sources, %d prefixes", len(sources), len(prefixes))
	}
	out := make([][]float64, len(prefixes))
	for i := range prefixes {
		dist, err := f(ctx, sources[i], prefixes[i])
		if err != nil {
			return nil, err
		}
		out[i] = dist
	}
	return out, nil
}

// LogitsFunc returns the unnormalized log-probabilities of the next token.
type LogitsFunc func(ctx context.Context, source, prefix []int) ([]float64, error)

// FromLogits returns a Func normalizing the output of fn with Softmax.
func FromLogits(fn LogitsFunc) Func {
	return func(ctx context.Context, source, prefix []int) ([]float64, error) {
		logits, err := fn(ctx, source, prefix)
		if err != nil {
			return nil, err
		}
		return Softmax(logits), nil
	}
}

// Softmax converts logits into a probability distribution.
// Logits equal to negative infinity get zero probability.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	return mat.NewVecDense(logits).Softmax().Data().F64()
}

// Parallel returns a decoder.Scorer which scores the rows of each batch
// concurrently, using at most workers goroutines. The order of the
// distributions follows the order of the rows.
func Parallel(r RowScorer, workers int) decoder.Scorer {
	return &parallel{row: r, workers: workers}
}

type parallel struct {
	row     RowScorer
	workers int
}

// Score implements decoder.Scorer.
func (p *parallel) Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error) {
	if len(sources) != len(prefixes) {
		return nil, fmt.Errorf("batch size mismatch: %d sources, %d prefixes", len(sources), len(prefixes))
	}
	out := make([][]float64, len(prefixes))

	g, ctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i := range prefixes {
		i := i
		g.Go(func() error {
			dist, err := p.row.ScoreRow(ctx, sources[i], prefixes[i])
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			out[i] = dist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
