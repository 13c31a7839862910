// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"

	"github.com/rs/zerolog/log"
)

// GreedySearch decodes the source sequence appending, at each step, the most
// probable next token, until the end marker is generated or the sequence
// reaches MaxLen. BeamWidth, MaxHypotheses and Decay are ignored.
//
// The result is the same as BeamSearch's best hypothesis when both BeamWidth
// and MaxHypotheses are 1.
func (d *Decoder) GreedySearch(ctx context.Context, source []int) (Hypothesis, error) {
	if err := checkSource(source); err != nil {
		return Hypothesis{}, err
	}

	h := Hypothesis{Sequence: []int{d.markers.Begin}, Likelihood: 1}

	for len(h.Sequence) < d.opts.MaxLen {
		select {
		case <-ctx.Done():
			return Hypothesis{}, ctx.Err()
		default:
		}

		dists, err := d.score(ctx, source, pool{h})
		if err != nil {
			return Hypothesis{}, err
		}
		best := argmax(dists[0])
		h = h.extend(best.token, best.prob)

		if best.token == d.markers.End {
			log.Trace().Msgf("Reached end token (%d)", d.markers.End)
			break
		}
	}
	return h, nil
}
