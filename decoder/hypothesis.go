// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

import (
	"sort"

	"github.com/nlpodyssey/beamflow/sliceutils"
)

// Hypothesis is a candidate target sequence paired with its likelihood.
type Hypothesis struct {
	// Sequence starts with the begin marker. A terminated hypothesis contains
	// the end marker, possibly followed by padding markers.
	Sequence []int
	// Likelihood is the product of the conditional probabilities of the
	// generated tokens, discounted by the decay of the terminated steps.
	Likelihood float64
}

// Terminated reports whether the sequence contains the end marker.
func (h Hypothesis) Terminated(end int) bool {
	for _, id := range h.Sequence {
		if id == end {
			return true
		}
	}
	return false
}

// Trimmed returns the sequence up to and including the end marker, if any,
// dropping the trailing padding.
func (h Hypothesis) Trimmed(m Markers) []int {
	for i, id := range h.Sequence {
		if id == m.End {
			return h.Sequence[:i+1]
		}
	}
	return h.Sequence
}

// Content returns the generated tokens, without the begin marker and
// truncated before the end marker.
func (h Hypothesis) Content(m Markers) []int {
	seq := h.Sequence
	if len(seq) > 0 && seq[0] == m.Begin {
		seq = seq[1:]
	}
	for i, id := range seq {
		if id == m.End {
			return seq[:i]
		}
	}
	return seq
}

// extend returns a new hypothesis with the token appended and the
// likelihood updated by the token probability.
func (h Hypothesis) extend(token int, prob float64) Hypothesis {
	seq := make([]int, len(h.Sequence)+1)
	copy(seq, h.Sequence)
	seq[len(h.Sequence)] = token
	return Hypothesis{
		Sequence:   seq,
		Likelihood: h.Likelihood * prob,
	}
}

// carry returns a terminated hypothesis moved on to the next step.
func (h Hypothesis) carry(pad int, decay float64) Hypothesis {
	return h.extend(pad, decay)
}

// pool is an ordered collection of hypotheses of equal length.
type pool []Hypothesis

// partition splits the pool into the hypotheses still to be expanded and the
// terminated ones, preserving their relative order.
func (p pool) partition(end int) (active, terminated pool) {
	for _, h := range p {
		if h.Terminated(end) {
			terminated = append(terminated, h)
			continue
		}
		active = append(active, h)
	}
	return active, terminated
}

// ranked is a hypothesis tagged with its position in the pool.
type ranked struct {
	Hypothesis
	pos int
}

// rankedLess reports whether a ranks below b: lower likelihood first, and
// later pool position among equal likelihoods.
func rankedLess(a, b ranked) bool {
	if a.Likelihood != b.Likelihood {
		return a.Likelihood < b.Likelihood
	}
	return a.pos > b.pos
}

// trim retains the n most likely hypotheses. The result is sorted by
// likelihood when trimming occurs; otherwise the pool is returned unchanged.
func (p pool) trim(n int) pool {
	if len(p) <= n {
		return p
	}
	top := sliceutils.NewTopN(n, rankedLess)
	for i, h := range p {
		top.Push(ranked{Hypothesis: h, pos: i})
	}
	sorted := top.Sorted()
	out := make(pool, len(sorted))
	for i, r := range sorted {
		out[i] = r.Hypothesis
	}
	return out
}

// sorted returns the hypotheses ordered by likelihood, most likely first.
// Equal likelihoods keep their pool order.
func (p pool) sorted() []Hypothesis {
	out := make([]Hypothesis, len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Likelihood > out[j].Likelihood
	})
	return out
}
