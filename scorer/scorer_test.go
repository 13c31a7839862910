// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scorer

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float64{0, math.Log(3), math.Inf(-1)})
	require.Len(t, probs, 3)
	assert.InDelta(t, 0.25, probs[0], 1e-9)
	assert.InDelta(t, 0.75, probs[1], 1e-9)
	assert.InDelta(t, 0, probs[2], 1e-9)

	assert.Nil(t, Softmax(nil))
}

// lastTokenLogits favours the token following the last one of the prefix.
func lastTokenLogits(_ context.Context, _, prefix []int) ([]float64, error) {
	logits := make([]float64, 6)
	logits[(prefix[len(prefix)-1]+1)%6] = 5
	return logits, nil
}

func TestFuncScore(t *testing.T) {
	f := FromLogits(lastTokenLogits)
	out, err := f.Score(context.Background(), [][]int{{2, 3}, {2, 3}}, [][]int{{2}, {2, 4}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Greater(t, out[0][3], 0.9)
	assert.Greater(t, out[1][5], 0.9)

	_, err = f.Score(context.Background(), [][]int{{2, 3}}, [][]int{{2}, {2, 4}})
	assert.Error(t, err)
}

func TestParallel(t *testing.T) {
	var running, peak int32
	row := Func(func(ctx context.Context, source, prefix []int) ([]float64, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		return lastTokenLogits(ctx, source, prefix)
	})

	s := Parallel(row, 2)
	sources := make([][]int, 20)
	prefixes := make([][]int, 20)
	for i := range prefixes {
		sources[i] = []int{2, 3}
		prefixes[i] = []int{2, i % 6}
	}
	out, err := s.Score(context.Background(), sources, prefixes)
	require.NoError(t, err)
	require.Len(t, out, 20)
	for i, logits := range out {
		assert.Equal(t, 5.0, logits[(i%6+1)%6])
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestParallelError(t *testing.T) {
	boom := errors.New("boom")
	s := Parallel(Func(func(_ context.Context, _, prefix []int) ([]float64, error) {
		if len(prefix) == 2 {
			return nil, boom
		}
		return []float64{1}, nil
	}), 4)
	_, err := s.Score(context.Background(), [][]int{{1}, {1}}, [][]int{{1}, {1, 2}})
	assert.ErrorIs(t, err, boom)
}

func TestParallelWithDecoder(t *testing.T) {
	markers := decoder.Markers{Begin: 2, End: 3, Pad: 1}
	d, err := decoder.New(Parallel(FromLogits(lastTokenLogits), 3), markers, decoder.DefaultOptions())
	require.NoError(t, err)

	result, err := d.BeamSearch(context.Background(), []int{2, 4, 3})
	require.NoError(t, err)
	require.NotEmpty(t, result)
	assert.Equal(t, []int{2, 3}, result[0].Trimmed(markers))
}
