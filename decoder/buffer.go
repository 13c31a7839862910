// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package decoder

// StepResult is the result of a single expansion step of the beam search.
type StepResult struct {
	// Step is the 1-based index of the expansion step.
	Step int
	// PoolSize is the number of hypotheses retained after trimming.
	PoolSize int
	// Active is the number of retained hypotheses not yet terminated.
	Active int
	// Terminated is the number of retained hypotheses containing the end marker.
	Terminated int
	// Best is the most likely hypothesis of the pool.
	Best Hypothesis
}

// Buffer is the interface that wraps the basic buffer methods.
type Buffer interface {
	// Write writes the given step result to the buffer.
	Write(stepResult StepResult) error
	// Close closes the buffer.
	Close()
}

// ChannelBuffer is a buffer that writes the results to a channel.
type ChannelBuffer chan StepResult

// Write writes the given step result to the buffer.
func (cb ChannelBuffer) Write(stepResult StepResult) error {
	cb <- stepResult
	return nil
}

// Close closes the buffer.
func (cb ChannelBuffer) Close() {
	close(cb)
}

func newStepResult(step int, p pool, end int) StepResult {
	r := StepResult{
		Step:     step,
		PoolSize: len(p),
	}
	for _, h := range p {
		if h.Terminated(end) {
			r.Terminated++
		} else {
			r.Active++
		}
		if r.Best.Sequence == nil || h.Likelihood > r.Best.Likelihood {
			r.Best = h
		}
	}
	return r
}
