// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"

	"github.com/rs/zerolog/log"
)

// BeamSearch decodes the source sequence keeping, at each step, the most
// likely hypotheses. It returns the final pool sorted by likelihood, most
// likely first.
//
// Each step expands every active hypothesis with its BeamWidth most probable
// next tokens, while terminated hypotheses are carried forward with one
// padding marker and a likelihood discounted by Decay. The pool is then
// trimmed to MaxHypotheses. The search stops when every hypothesis is
// terminated or the sequences reach MaxLen; hypotheses still active at that
// point are returned as they are, without an end marker.
func (d *Decoder) BeamSearch(ctx context.Context, source []int) ([]Hypothesis, error) {
	return d.beamSearch(ctx, source, nil)
}

// BeamSearchStream is like BeamSearch, but it also writes a StepResult to the
// buffer after each expansion step. The buffer is closed before returning.
func (d *Decoder) BeamSearchStream(ctx context.Context, source []int, buf Buffer) ([]Hypothesis, error) {
	defer buf.Close()
	return d.beamSearch(ctx, source, buf)
}

func (d *Decoder) beamSearch(ctx context.Context, source []int, buf Buffer) ([]Hypothesis, error) {
	if err := checkSource(source); err != nil {
		return nil, err
	}

	p := pool{{Sequence: []int{d.markers.Begin}, Likelihood: 1}}

	for step := 1; len(p[0].Sequence) < d.opts.MaxLen; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		active, terminated := p.partition(d.markers.End)
		if len(active) == 0 {
			log.Trace().Msgf("All %d hypotheses terminated at length %d", len(terminated), len(p[0].Sequence))
			break
		}

		dists, err := d.score(ctx, source, active)
		if err != nil {
			return nil, err
		}

		next := make(pool, 0, len(active)*d.opts.BeamWidth+len(terminated))
		for i, h := range active {
			for _, c := range topCandidates(dists[i], d.opts.BeamWidth) {
				next = append(next, h.extend(c.token, c.prob))
			}
		}
		for _, h := range terminated {
			next = append(next, h.carry(d.markers.Pad, d.opts.Decay))
		}

		p = next.trim(d.opts.MaxHypotheses)
		log.Trace().Msgf("Step %d: %d active, %d terminated, %d retained", step, len(active), len(terminated), len(p))

		if buf != nil {
			if err = buf.Write(newStepResult(step, p, d.markers.End)); err != nil {
				return nil, err
			}
		}
	}

	return p.sorted(), nil
}
