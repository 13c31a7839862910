// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// DefaultDecay is the default likelihood discount applied, at each step, to
// the hypotheses which already reached the end marker.
const DefaultDecay = 0.999

var (
	// ErrInvalidConfiguration is returned when the decoding options, the
	// reserved markers or the source sequence cannot be used for decoding.
	ErrInvalidConfiguration = errors.New("invalid decoder configuration")
	// ErrScorerFailure is returned when the scorer fails or produces an
	// invalid probability distribution.
	ErrScorerFailure = errors.New("scorer failure")
)

// Scorer is the interface that wraps the Score method.
//
// Score receives a batch of source sequences and a batch of target prefixes
// of the same size. For each (source, prefix) pair it returns the probability
// distribution of the next target token over the whole target vocabulary.
// Implementations must not modify the given sequences, and must not keep
// memory between calls beyond what the prefixes encode.
type Scorer interface {
	Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error)
}

// ScorerFunc is an adapter to allow the use of ordinary functions as scorers.
type ScorerFunc func(ctx context.Context, sources, prefixes [][]int) ([][]float64, error)

// Score calls f(ctx, sources, prefixes).
func (f ScorerFunc) Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error) {
	return f(ctx, sources, prefixes)
}

// Markers holds the reserved target token IDs the decoder relies on.
type Markers struct {
	// Begin is the ID every target sequence starts with.
	Begin int
	// End is the ID that terminates a hypothesis.
	End int
	// Pad is the ID appended to terminated hypotheses to keep all the
	// sequences of the pool equally long.
	Pad int
}

// Validate checks that the markers are non-negative and pairwise distinct.
func (m Markers) Validate() error {
	if m.Begin < 0 || m.End < 0 || m.Pad < 0 {
		return fmt.Errorf("%w: negative marker in %+v", ErrInvalidConfiguration, m)
	}
	if m.Begin == m.End || m.Begin == m.Pad || m.End == m.Pad {
		return fmt.Errorf("%w: markers must be distinct, got %+v", ErrInvalidConfiguration, m)
	}
	return nil
}

// Options contains the options for beam and greedy search.
type Options struct {
	// BeamWidth is the number of candidate next tokens expanded for each
	// active hypothesis at each step.
	BeamWidth int `yaml:"beam_width" json:"beam_width"`
	// MaxHypotheses is the maximum number of hypotheses retained in the pool
	// after each step.
	MaxHypotheses int `yaml:"max_hypotheses" json:"max_hypotheses"`
	// MaxLen is the maximum length of a target sequence, begin marker included.
	MaxLen int `yaml:"max_len" json:"max_len"`
	// Decay multiplies the likelihood of each terminated hypothesis at every
	// step it survives while other hypotheses are still being expanded.
	Decay float64 `yaml:"decay" json:"decay"`
}

// DefaultOptions returns the default decoding options.
func DefaultOptions() Options {
	return Options{
		BeamWidth:     5,
		MaxHypotheses: 10,
		MaxLen:        30,
		Decay:         DefaultDecay,
	}
}

// Validate checks the options, returning an error wrapping
// ErrInvalidConfiguration if they cannot be used for decoding.
func (o Options) Validate() error {
	switch {
	case o.BeamWidth < 1:
		return fmt.Errorf("%w: beam width must be >= 1, got %d", ErrInvalidConfiguration, o.BeamWidth)
	case o.MaxHypotheses < 1:
		return fmt.Errorf("%w: max hypotheses must be >= 1, got %d", ErrInvalidConfiguration, o.MaxHypotheses)
	case o.MaxLen < 2:
		return fmt.Errorf("%w: max length must be >= 2, got %d", ErrInvalidConfiguration, o.MaxLen)
	case math.IsNaN(o.Decay) || o.Decay <= 0 || o.Decay > 1:
		return fmt.Errorf("%w: decay must be in (0, 1], got %v", ErrInvalidConfiguration, o.Decay)
	}
	return nil
}

// Decoder generates target sequences from a source sequence by querying a
// Scorer. A Decoder is immutable and can be shared by concurrent searches.
type Decoder struct {
	scorer  Scorer
	markers Markers
	opts    Options
}

// New returns a new Decoder. Options and markers are validated eagerly.
func New(scorer Scorer, markers Markers, opts Options) (*Decoder, error) {
	if scorer == nil {
		return nil, fmt.Errorf("%w: nil scorer", ErrInvalidConfiguration)
	}
	if err := markers.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{
		scorer:  scorer,
		markers: markers,
		opts:    opts,
	}, nil
}

// Options returns the decoding options.
func (d *Decoder) Options() Options {
	return d.opts
}

// Markers returns the reserved markers.
func (d *Decoder) Markers() Markers {
	return d.markers
}

// score invokes the scorer once for all the given hypotheses, replicating the
// source sequence once per hypothesis.
func (d *Decoder) score(ctx context.Context, source []int, hyps pool) ([][]float64, error) {
	sources := make([][]int, len(hyps))
	prefixes := make([][]int, len(hyps))
	for i, h := range hyps {
		sources[i] = source
		prefixes[i] = h.Sequence
	}
	dists, err := d.scorer.Score(ctx, sources, prefixes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScorerFailure, err)
	}
	if err = checkDistributions(dists, len(hyps)); err != nil {
		return nil, err
	}
	return dists, nil
}

func checkSource(source []int) error {
	if len(source) == 0 {
		return fmt.Errorf("%w: empty source sequence", ErrInvalidConfiguration)
	}
	log.Trace().Msgf("Decoding source sequence: %v", source)
	return nil
}
