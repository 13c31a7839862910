// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package encoder

import (
	"errors"
	"fmt"

	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/nlpodyssey/beamflow/vocabulary"
	"github.com/rs/zerolog/log"
)

// ErrEmptySource is returned when a text produces no tokens.
var ErrEmptySource = errors.New("empty source sentence")

// Encoder converts source sentences into the index sequences consumed by
// the decoder.
type Encoder struct {
	tokenizer tokenizer.Tokenizer
	vocab     *vocabulary.Vocabulary
}

func New(tk tokenizer.Tokenizer, vocab *vocabulary.Vocabulary) *Encoder {
	return &Encoder{tokenizer: tk, vocab: vocab}
}

// Encode returns the IDs of the tokens of the text, surrounded by the begin
// and end markers. Tokens missing from the vocabulary are encoded as unknown.
func (e *Encoder) Encode(text string) ([]int, error) {
	tokens, err := e.tokenizer.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", text, err)
	}
	if len(tokens) == 0 {
		return nil, ErrEmptySource
	}

	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, e.vocab.Begin())
	ids = append(ids, e.vocab.EncodeAll(tokens)...)
	ids = append(ids, e.vocab.End())
	log.Trace().Msgf("Encoded %q as %v", text, ids)
	return ids, nil
}

// Tokens returns the tokens of the text as the vocabulary sees them.
func (e *Encoder) Tokens(text string) ([]string, error) {
	ids, err := e.Encode(text)
	if err != nil {
		return nil, err
	}
	return e.vocab.DecodeAll(ids), nil
}
