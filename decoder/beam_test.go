// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var toySource = []int{begin, 7, 8, end}

func newToyDecoder(t *testing.T, scorer Scorer, beamWidth, maxHypotheses, maxLen int) *Decoder {
	t.Helper()
	d, err := New(scorer, toyMarkers, Options{
		BeamWidth:     beamWidth,
		MaxHypotheses: maxHypotheses,
		MaxLen:        maxLen,
		Decay:         DefaultDecay,
	})
	require.NoError(t, err)
	return d
}

func TestBeamSearch(t *testing.T) {
	scorer := prefixScorer(func(prefix []int) []float64 {
		if len(prefix) < 4 {
			d := make([]float64, toyVocabSize)
			d[tokA], d[tokB] = 0.6, 0.4
			return d
		}
		return oneHot(end)
	})
	d := newToyDecoder(t, scorer, 2, 2, 6)

	result, err := d.BeamSearch(context.Background(), toySource)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, []int{begin, tokA, tokA, tokA, end}, result[0].Sequence)
	assert.InDelta(t, 0.216, result[0].Likelihood, 1e-9)
	assert.Equal(t, []int{begin, tokA, tokA, tokB, end}, result[1].Sequence)
	assert.InDelta(t, 0.144, result[1].Likelihood, 1e-9)
}

func TestBeamSearchDecaysTerminatedHypotheses(t *testing.T) {
	scorer := prefixScorer(func(prefix []int) []float64 {
		switch {
		case len(prefix) == 1:
			d := make([]float64, toyVocabSize)
			d[end], d[tokA] = 0.5, 0.5
			return d
		case len(prefix) < 4:
			return oneHot(tokA)
		default:
			return oneHot(end)
		}
	})
	// the zero likelihood children ([begin a unk], ...) lose every trim
	d := newToyDecoder(t, scorer, 2, 2, 5)

	result, err := d.BeamSearch(context.Background(), toySource)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, []int{begin, tokA, tokA, tokA, end}, result[0].Sequence)
	assert.InDelta(t, 0.5, result[0].Likelihood, 1e-12)
	assert.Equal(t, []int{begin, end, pad, pad, pad}, result[1].Sequence)
	assert.InDelta(t, 0.5*math.Pow(DefaultDecay, 3), result[1].Likelihood, 1e-12)
	assert.Equal(t, []int{begin, end}, result[1].Trimmed(toyMarkers))
}

func TestBeamSearchStopsAtMaxLen(t *testing.T) {
	d := newToyDecoder(t, prefixScorer(func([]int) []float64 { return oneHot(tokA) }), 3, 3, 4)

	result, err := d.BeamSearch(context.Background(), toySource)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, []int{begin, tokA, tokA, tokA}, result[0].Sequence)
	assert.Equal(t, 1.0, result[0].Likelihood)
	assert.Equal(t, []int{begin, tokA, tokA, unk}, result[1].Sequence)
	assert.Equal(t, []int{begin, tokA, tokA, pad}, result[2].Sequence)
	for _, h := range result {
		assert.Len(t, h.Sequence, 4)
		assert.False(t, h.Terminated(end))
	}
	assert.Zero(t, result[1].Likelihood)
	assert.Zero(t, result[2].Likelihood)
}

func TestBeamSearchExpandsZeroProbabilityTokens(t *testing.T) {
	d := newToyDecoder(t, prefixScorer(func([]int) []float64 { return oneHot(tokA) }), 3, 10, 3)

	result, err := d.BeamSearch(context.Background(), toySource)
	require.NoError(t, err)
	// every active hypothesis gets exactly 3 children: 3 * 3 after two steps
	require.Len(t, result, 9)

	assert.Equal(t, []int{begin, tokA, tokA}, result[0].Sequence)
	assert.Equal(t, 1.0, result[0].Likelihood)
	assert.Equal(t, [][]int{
		{begin, tokA, unk}, {begin, tokA, pad},
		{begin, unk, tokA}, {begin, unk, unk}, {begin, unk, pad},
		{begin, pad, tokA}, {begin, pad, unk}, {begin, pad, pad},
	}, sequences(result[1:]))
	for _, h := range result[1:] {
		assert.Zero(t, h.Likelihood)
		assert.False(t, h.Terminated(end))
	}
}

func TestBeamSearchEarlyTermination(t *testing.T) {
	calls := 0
	scorer := ScorerFunc(func(_ context.Context, sources, prefixes [][]int) ([][]float64, error) {
		calls++
		out := make([][]float64, len(prefixes))
		for i := range out {
			out[i] = oneHot(end)
		}
		return out, nil
	})

	// a single retained hypothesis drops the zero likelihood siblings of the
	// end marker, so decoding stops after the first step
	for _, beamWidth := range []int{1, 2, 5} {
		d := newToyDecoder(t, scorer, beamWidth, 1, 30)
		result, err := d.BeamSearch(context.Background(), toySource)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, []int{begin, end}, result[0].Sequence)
		assert.Equal(t, 1.0, result[0].Likelihood)
	}
	assert.Equal(t, 3, calls)
}

func TestBeamSearchBatchesActiveHypotheses(t *testing.T) {
	var batchSizes []int
	scorer := ScorerFunc(func(_ context.Context, sources, prefixes [][]int) ([][]float64, error) {
		require.Len(t, sources, len(prefixes))
		batchSizes = append(batchSizes, len(prefixes))
		out := make([][]float64, len(prefixes))
		for i, prefix := range prefixes {
			assert.Equal(t, toySource, sources[i])
			assert.Equal(t, begin, prefix[0])
			assert.NotContains(t, prefix, end)
			if len(prefix) < 3 {
				out[i] = make([]float64, toyVocabSize)
				out[i][tokA], out[i][tokB], out[i][end] = 0.5, 0.3, 0.2
				continue
			}
			out[i] = oneHot(end)
		}
		return out, nil
	})
	d := newToyDecoder(t, scorer, 2, 3, 10)

	_, err := d.BeamSearch(context.Background(), toySource)
	require.NoError(t, err)
	// 1 root, then 2 children, then the 3 retained grandchildren
	assert.Equal(t, []int{1, 2, 3}, batchSizes)
}

func TestBeamSearchProperties(t *testing.T) {
	const vocabSize = 12
	markers := Markers{Begin: 2, End: 3, Pad: 1}

	for seed := int64(1); seed <= 20; seed++ {
		opts := Options{BeamWidth: 3, MaxHypotheses: 4, MaxLen: 8, Decay: DefaultDecay}
		d, err := New(randomScorer(vocabSize, seed), markers, opts)
		require.NoError(t, err)

		buf := make(ChannelBuffer)
		var steps []StepResult
		done := make(chan struct{})
		go func() {
			defer close(done)
			for r := range buf {
				steps = append(steps, r)
			}
		}()

		result, err := d.BeamSearchStream(context.Background(), toySource, buf)
		require.NoError(t, err)
		<-done

		require.NotEmpty(t, result)
		assert.LessOrEqual(t, len(result), opts.MaxHypotheses)
		length := len(result[0].Sequence)
		assert.LessOrEqual(t, length, opts.MaxLen)
		for i, h := range result {
			assert.Len(t, h.Sequence, length)
			assert.Equal(t, markers.Begin, h.Sequence[0])
			assert.GreaterOrEqual(t, h.Likelihood, 0.0)
			assert.LessOrEqual(t, h.Likelihood, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, result[i-1].Likelihood, h.Likelihood)
			}
		}

		require.NotEmpty(t, steps)
		for i, s := range steps {
			assert.Equal(t, i+1, s.Step)
			assert.LessOrEqual(t, s.PoolSize, opts.MaxHypotheses)
			assert.Equal(t, s.PoolSize, s.Active+s.Terminated)
			assert.Len(t, s.Best.Sequence, i+2)
		}

		again, err := d.BeamSearch(context.Background(), toySource)
		require.NoError(t, err)
		assert.Equal(t, result, again)
	}
}

func TestBeamSearchDegeneratesToGreedy(t *testing.T) {
	const vocabSize = 9
	markers := Markers{Begin: 2, End: 3, Pad: 1}
	opts := Options{BeamWidth: 1, MaxHypotheses: 1, MaxLen: 12, Decay: DefaultDecay}

	for seed := int64(1); seed <= 30; seed++ {
		d, err := New(randomScorer(vocabSize, seed), markers, opts)
		require.NoError(t, err)

		beam, err := d.BeamSearch(context.Background(), toySource)
		require.NoError(t, err)
		require.Len(t, beam, 1)

		greedy, err := d.GreedySearch(context.Background(), toySource)
		require.NoError(t, err)

		assert.Equal(t, greedy.Sequence, beam[0].Sequence)
		assert.InDelta(t, greedy.Likelihood, beam[0].Likelihood, 1e-12)
	}
}

func TestBeamSearchScorerFailure(t *testing.T) {
	boom := errors.New("boom")
	d := newToyDecoder(t, ScorerFunc(func(context.Context, [][]int, [][]int) ([][]float64, error) {
		return nil, boom
	}), 2, 2, 5)

	_, err := d.BeamSearch(context.Background(), toySource)
	assert.ErrorIs(t, err, ErrScorerFailure)
	assert.ErrorIs(t, err, boom)
}

func TestBeamSearchInvalidDistribution(t *testing.T) {
	testCases := []struct {
		name   string
		scorer Scorer
	}{
		{"NaN", prefixScorer(func([]int) []float64 {
			d := oneHot(tokA)
			d[tokB] = math.NaN()
			return d
		})},
		{"wrong batch size", ScorerFunc(func(context.Context, [][]int, [][]int) ([][]float64, error) {
			return [][]float64{oneHot(tokA), oneHot(tokB)}, nil
		})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newToyDecoder(t, tc.scorer, 2, 2, 5)
			_, err := d.BeamSearch(context.Background(), toySource)
			assert.ErrorIs(t, err, ErrScorerFailure)
		})
	}
}

func TestBeamSearchContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scorer := prefixScorer(func(prefix []int) []float64 {
		if len(prefix) == 2 {
			cancel()
		}
		return oneHot(tokA)
	})
	d := newToyDecoder(t, scorer, 2, 2, 10)

	_, err := d.BeamSearch(ctx, toySource)
	assert.ErrorIs(t, err, context.Canceled)
}

func sequences(hs []Hypothesis) [][]int {
	out := make([][]int, len(hs))
	for i, h := range hs {
		out[i] = h.Sequence
	}
	return out
}
