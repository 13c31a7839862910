// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ngram implements a count-based translation scorer: a target bigram
// language model interpolated with an IBM model 1 lexical translation table.
package ngram

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/scorer"
	"github.com/rs/zerolog/log"
)

// ErrInvalidInput is returned when a sequence contains IDs out of the
// vocabulary range, or a prefix is empty.
var ErrInvalidInput = errors.New("invalid scorer input")

// Special holds the reserved target IDs. Unknown, Pad and Begin are never
// predicted.
type Special struct {
	Unknown int `yaml:"unknown"`
	Pad     int `yaml:"pad"`
	Begin   int `yaml:"begin"`
	End     int `yaml:"end"`
}

// Config contains the training hyperparameters.
type Config struct {
	// Lambda is the weight of the lexical translation model; the bigram
	// model gets 1-Lambda.
	Lambda float64 `yaml:"lambda"`
	// Smoothing is the pseudo-count given to the unigram distribution when
	// estimating the bigram probabilities.
	Smoothing float64 `yaml:"smoothing"`
	// Iterations is the number of expectation-maximization iterations used
	// to estimate the translation table.
	Iterations int `yaml:"iterations"`
}

// DefaultConfig returns the default training hyperparameters.
func DefaultConfig() Config {
	return Config{
		Lambda:     0.5,
		Smoothing:  1,
		Iterations: 5,
	}
}

func (c Config) validate() error {
	switch {
	case c.Lambda < 0 || c.Lambda > 1:
		return fmt.Errorf("lambda must be in [0, 1], got %v", c.Lambda)
	case c.Smoothing <= 0:
		return fmt.Errorf("smoothing must be positive, got %v", c.Smoothing)
	case c.Iterations < 1:
		return fmt.Errorf("iterations must be >= 1, got %d", c.Iterations)
	}
	return nil
}

// Example is a training pair of encoded sentences. Target sequences start
// with the begin marker and end with the end marker.
type Example struct {
	Source []int
	Target []int
}

// Model is a trained translation scorer. It implements decoder.Scorer and
// scorer.RowScorer, and it is safe for concurrent use.
type Model struct {
	Config     Config
	Special    Special
	SourceSize int
	TargetSize int
	// Unigram is the smoothed unigram distribution of the target tokens.
	Unigram []float64
	// Bigram counts the occurrences of each (previous, next) target pair.
	Bigram map[int]map[int]float64
	// Context counts the occurrences of each previous target token.
	Context map[int]float64
	// Translation maps a source token to the probability of each target
	// token being its translation.
	Translation map[int]map[int]float64
}

var (
	_ decoder.Scorer   = &Model{}
	_ scorer.RowScorer = &Model{}
)

// Train estimates a Model from the examples.
func Train(ctx context.Context, examples []Example, sourceSize, targetSize int, special Special, config Config) (*Model, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	m := &Model{
		Config:      config,
		Special:     special,
		SourceSize:  sourceSize,
		TargetSize:  targetSize,
		Bigram:      make(map[int]map[int]float64),
		Context:     make(map[int]float64),
		Translation: make(map[int]map[int]float64),
	}
	for i, ex := range examples {
		if len(ex.Source) == 0 || len(ex.Target) == 0 {
			return nil, fmt.Errorf("%w: example %d has an empty sequence", ErrInvalidInput, i)
		}
		if err := m.checkRange(ex.Source, m.SourceSize); err != nil {
			return nil, fmt.Errorf("example %d source: %w", i, err)
		}
		if err := m.checkRange(ex.Target, m.TargetSize); err != nil {
			return nil, fmt.Errorf("example %d target: %w", i, err)
		}
	}

	m.countNGrams(examples)
	if err := m.estimateTranslation(ctx, examples); err != nil {
		return nil, err
	}
	log.Debug().Msgf("Trained n-gram model on %d examples: %d bigram contexts, %d translated source tokens", len(examples), len(m.Bigram), len(m.Translation))
	return m, nil
}

func (m *Model) predictable(id int) bool {
	return id != m.Special.Unknown && id != m.Special.Pad && id != m.Special.Begin
}

func (m *Model) countNGrams(examples []Example) {
	counts := make([]float64, m.TargetSize)
	var total float64
	for _, ex := range examples {
		for i := 1; i < len(ex.Target); i++ {
			prev, next := ex.Target[i-1], ex.Target[i]
			row, ok := m.Bigram[prev]
			if !ok {
				row = make(map[int]float64)
				m.Bigram[prev] = row
			}
			row[next]++
			m.Context[prev]++
			if m.predictable(next) {
				counts[next]++
				total++
			}
		}
	}

	allowed := 0
	for id := 0; id < m.TargetSize; id++ {
		if m.predictable(id) {
			allowed++
		}
	}
	m.Unigram = make([]float64, m.TargetSize)
	for id, c := range counts {
		if m.predictable(id) {
			m.Unigram[id] = (c + 1) / (total + float64(allowed))
		}
	}
}

// estimateTranslation runs the IBM model 1 EM algorithm, starting from a
// uniform table over the co-occurring pairs.
func (m *Model) estimateTranslation(ctx context.Context, examples []Example) error {
	table := make(map[int]map[int]float64)
	for _, ex := range examples {
		for _, e := range ex.Source {
			row, ok := table[e]
			if !ok {
				row = make(map[int]float64)
				table[e] = row
			}
			for _, f := range ex.Target[1:] {
				row[f] = 1
			}
		}
	}

	for it := 1; it <= m.Config.Iterations; it++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		counts := make(map[int]map[int]float64, len(table))
		totals := make(map[int]float64, len(table))
		for _, ex := range examples {
			for _, f := range ex.Target[1:] {
				var z float64
				for _, e := range ex.Source {
					z += table[e][f]
				}
				for _, e := range ex.Source {
					c := table[e][f] / z
					row, ok := counts[e]
					if !ok {
						row = make(map[int]float64)
						counts[e] = row
					}
					row[f] += c
					totals[e] += c
				}
			}
		}
		for e, row := range counts {
			for f := range row {
				row[f] /= totals[e]
			}
		}
		table = counts
		log.Trace().Msgf("EM iteration %d/%d done", it, m.Config.Iterations)
	}
	m.Translation = table
	return nil
}

func (m *Model) checkRange(ids []int, size int) error {
	for _, id := range ids {
		if id < 0 || id >= size {
			return fmt.Errorf("%w: ID %d out of range [0, %d)", ErrInvalidInput, id, size)
		}
	}
	return nil
}

// Logits returns the unnormalized log-probabilities of the next target token
// after the prefix, given the source sequence. The tokens that are never
// predicted get negative infinity.
func (m *Model) Logits(_ context.Context, source, prefix []int) ([]float64, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("%w: empty prefix", ErrInvalidInput)
	}
	if err := m.checkRange(source, m.SourceSize); err != nil {
		return nil, err
	}
	if err := m.checkRange(prefix, m.TargetSize); err != nil {
		return nil, err
	}

	lex := make([]float64, m.TargetSize)
	known := 0
	for _, e := range source {
		row, ok := m.Translation[e]
		if !ok {
			continue
		}
		known++
		for f, p := range row {
			lex[f] += p
		}
	}
	lambda := m.Config.Lambda
	if known == 0 {
		lambda = 0
	}

	prev := prefix[len(prefix)-1]
	bigram := m.Bigram[prev]
	denominator := m.Context[prev] + m.Config.Smoothing

	logits := make([]float64, m.TargetSize)
	for w := range logits {
		if !m.predictable(w) {
			logits[w] = math.Inf(-1)
			continue
		}
		lm := (bigram[w] + m.Config.Smoothing*m.Unigram[w]) / denominator
		p := (1 - lambda) * lm
		if known > 0 {
			p += lambda * lex[w] / float64(known)
		}
		logits[w] = math.Log(p)
	}
	return logits, nil
}

// ScoreRow returns the distribution of the next target token after the
// prefix, given the source sequence: the softmax of Logits.
func (m *Model) ScoreRow(ctx context.Context, source, prefix []int) ([]float64, error) {
	return scorer.FromLogits(m.Logits)(ctx, source, prefix)
}

// Score scores each row of the batch.
func (m *Model) Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error) {
	return scorer.Func(m.ScoreRow).Score(ctx, sources, prefixes)
}
