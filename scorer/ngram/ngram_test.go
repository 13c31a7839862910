// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ngram

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Source: unk:0 pad:1 bos:2 eos:3 the:4 cat:5 dog:6
// Target: unk:0 pad:1 bos:2 eos:3 le:4 chat:5 chien:6
const (
	bos = 2
	eos = 3

	the, cat, dog   = 4, 5, 6
	le, chat, chien = 4, 5, 6

	vocabSize = 7
)

var special = Special{Unknown: 0, Pad: 1, Begin: bos, End: eos}

var examples = []Example{
	{Source: []int{bos, cat, eos}, Target: []int{bos, chat, eos}},
	{Source: []int{bos, dog, eos}, Target: []int{bos, chien, eos}},
	{Source: []int{bos, the, cat, eos}, Target: []int{bos, le, chat, eos}},
	{Source: []int{bos, the, dog, eos}, Target: []int{bos, le, chien, eos}},
}

func trainToyModel(t *testing.T) *Model {
	t.Helper()
	m, err := Train(context.Background(), examples, vocabSize, vocabSize, special, DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestTrainValidation(t *testing.T) {
	ctx := context.Background()

	_, err := Train(ctx, examples, vocabSize, vocabSize, special, Config{Lambda: 2, Smoothing: 1, Iterations: 1})
	assert.Error(t, err)
	_, err = Train(ctx, examples, vocabSize, vocabSize, special, Config{Lambda: 0.5, Smoothing: 0, Iterations: 1})
	assert.Error(t, err)
	_, err = Train(ctx, examples, vocabSize, vocabSize, special, Config{Lambda: 0.5, Smoothing: 1, Iterations: 0})
	assert.Error(t, err)

	_, err = Train(ctx, examples, 5, vocabSize, special, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Train(ctx, []Example{{Source: []int{bos}}}, vocabSize, vocabSize, special, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Train(cancelled, examples, vocabSize, vocabSize, special, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreRowIsDistribution(t *testing.T) {
	m := trainToyModel(t)

	for _, prefix := range [][]int{{bos}, {bos, le}, {bos, le, chat}, {bos, 0}} {
		dist, err := m.ScoreRow(context.Background(), []int{bos, the, cat, eos}, prefix)
		require.NoError(t, err)
		require.Len(t, dist, vocabSize)

		var sum float64
		for _, p := range dist {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-9)
		assert.Zero(t, dist[special.Unknown])
		assert.Zero(t, dist[special.Pad])
		assert.Zero(t, dist[special.Begin])
		assert.Positive(t, dist[eos])
	}
}

func TestLogits(t *testing.T) {
	m := trainToyModel(t)
	source, prefix := []int{bos, the, dog, eos}, []int{bos, le}

	logits, err := m.Logits(context.Background(), source, prefix)
	require.NoError(t, err)
	require.Len(t, logits, vocabSize)
	for _, id := range []int{special.Unknown, special.Pad, special.Begin} {
		assert.True(t, math.IsInf(logits[id], -1))
	}

	dist, err := m.ScoreRow(context.Background(), source, prefix)
	require.NoError(t, err)
	var sum float64
	for _, l := range logits {
		sum += math.Exp(l)
	}
	for id, l := range logits {
		assert.InDelta(t, math.Exp(l)/sum, dist[id], 1e-9)
	}
	assert.Greater(t, dist[chien], dist[chat])

	_, err = m.Logits(context.Background(), source, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScoreRowTranslates(t *testing.T) {
	m := trainToyModel(t)
	ctx := context.Background()

	afterLe := []int{bos, le}
	theCat, err := m.ScoreRow(ctx, []int{bos, the, cat, eos}, afterLe)
	require.NoError(t, err)
	theDog, err := m.ScoreRow(ctx, []int{bos, the, dog, eos}, afterLe)
	require.NoError(t, err)

	assert.Greater(t, theCat[chat], theCat[chien])
	assert.Greater(t, theDog[chien], theDog[chat])
	assert.Greater(t, theCat[chat], theDog[chat])

	// the bigram model alone ignores the source
	lmOnly := *m
	lmOnly.Config.Lambda = 0
	a, err := lmOnly.ScoreRow(ctx, []int{bos, cat, eos}, afterLe)
	require.NoError(t, err)
	b, err := lmOnly.ScoreRow(ctx, []int{bos, dog, eos}, afterLe)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScoreRowUnknownSource(t *testing.T) {
	m := trainToyModel(t)
	// the unknown source token was never seen: only the bigram model is used
	dist, err := m.ScoreRow(context.Background(), []int{0}, []int{bos})
	require.NoError(t, err)
	assert.Greater(t, dist[le], dist[chat])
}

func TestScoreRowErrors(t *testing.T) {
	m := trainToyModel(t)
	ctx := context.Background()

	_, err := m.ScoreRow(ctx, []int{bos, eos}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.ScoreRow(ctx, []int{bos, 42}, []int{bos})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.ScoreRow(ctx, []int{bos, eos}, []int{-1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDecodeWithModel(t *testing.T) {
	m := trainToyModel(t)
	d, err := decoder.New(m, decoder.Markers{Begin: bos, End: eos, Pad: special.Pad}, decoder.Options{
		BeamWidth:     3,
		MaxHypotheses: 6,
		MaxLen:        6,
		Decay:         decoder.DefaultDecay,
	})
	require.NoError(t, err)

	source := []int{bos, the, dog, eos}
	result, err := d.BeamSearch(context.Background(), source)
	require.NoError(t, err)
	require.NotEmpty(t, result)

	again, err := d.BeamSearch(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, result, again)
}

func TestDumpLoad(t *testing.T) {
	m := trainToyModel(t)
	filename := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, Dump(m, filename))

	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	source, prefix := []int{bos, cat, eos}, []int{bos}
	expected, err := m.ScoreRow(context.Background(), source, prefix)
	require.NoError(t, err)
	actual, err := loaded.ScoreRow(context.Background(), source, prefix)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)

	_, err = Load(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}
