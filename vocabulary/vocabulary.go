// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vocabulary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nlpodyssey/beamflow/decoder"
	gtvocabulary "github.com/nlpodyssey/gotokenizers/vocabulary"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Reserved terms every vocabulary must contain.
const (
	UnknownToken = "<unk>"
	PadToken     = "<pad>"
	BeginToken   = "<bos>"
	EndToken     = "<eos>"
)

// Specials lists the reserved terms in the order Build assigns them.
var Specials = []string{UnknownToken, PadToken, BeginToken, EndToken}

// ErrMissingSpecial is returned when a vocabulary lacks a reserved term.
var ErrMissingSpecial = errors.New("vocabulary is missing a reserved term")

// Vocabulary is a bidirectional mapping between terms and dense integer IDs.
// Unknown terms are mapped to the ID of UnknownToken.
// A Vocabulary is read-only after construction.
type Vocabulary struct {
	terms []string
	ids   map[string]int

	unk, pad, bos, eos int
}

// New returns a Vocabulary where the ID of each term is its position.
// Duplicated terms keep the first position.
func New(terms []string) (*Vocabulary, error) {
	v := &Vocabulary{
		terms: make([]string, len(terms)),
		ids:   make(map[string]int, len(terms)),
	}
	copy(v.terms, terms)
	for i, t := range terms {
		if _, ok := v.ids[t]; !ok {
			v.ids[t] = i
		}
	}

	for _, s := range []struct {
		term string
		id   *int
	}{
		{UnknownToken, &v.unk},
		{PadToken, &v.pad},
		{BeginToken, &v.bos},
		{EndToken, &v.eos},
	} {
		id, ok := v.ids[s.term]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingSpecial, s.term)
		}
		*s.id = id
	}
	return v, nil
}

// Build returns a Vocabulary made of the reserved terms, at IDs 0 to 3,
// followed by every term occurring at least minFreq times in the sentences.
// Terms are sorted by decreasing frequency, then lexicographically.
func Build(sentences [][]string, minFreq int) *Vocabulary {
	freq := make(map[string]int)
	for _, sentence := range sentences {
		for _, t := range sentence {
			freq[t]++
		}
	}
	for _, s := range Specials {
		delete(freq, s)
	}

	candidates := maps.Keys(freq)
	slices.SortFunc(candidates, func(a, b string) bool {
		if freq[a] != freq[b] {
			return freq[a] > freq[b]
		}
		return a < b
	})

	terms := append(make([]string, 0, len(Specials)+len(candidates)), Specials...)
	for _, t := range candidates {
		if freq[t] >= minFreq {
			terms = append(terms, t)
		}
	}
	log.Debug().Msgf("Built vocabulary of %d terms (%d distinct in corpus, min frequency %d)", len(terms), len(freq), minFreq)

	v, err := New(terms)
	if err != nil {
		// unreachable: the reserved terms are always included
		panic(err)
	}
	return v
}

// Load reads a vocabulary from a JSON file mapping each term to its ID.
func Load(filename string) (*Vocabulary, error) {
	gv, err := gtvocabulary.FromJSONFile(filename)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary from file %s: %w", filename, err)
	}
	terms := make([]string, gv.Size())
	for id := range terms {
		t, ok := gv.GetString(id)
		if !ok {
			return nil, fmt.Errorf("loading vocabulary from file %s: IDs are not contiguous, missing %d", filename, id)
		}
		terms[id] = t
	}
	return New(terms)
}

// Save writes the vocabulary to a JSON file mapping each term to its ID.
func (v *Vocabulary) Save(filename string) error {
	m := make(map[string]int, len(v.terms))
	for id, t := range v.terms {
		if _, ok := m[t]; !ok {
			m[t] = id
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err = os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("saving vocabulary to file %s: %w", filename, err)
	}
	return nil
}

// Size returns the number of terms.
func (v *Vocabulary) Size() int {
	return len(v.terms)
}

// Encode returns the ID of the term, or the ID of UnknownToken.
func (v *Vocabulary) Encode(term string) int {
	if id, ok := v.ids[term]; ok {
		return id
	}
	return v.unk
}

// EncodeAll encodes each term.
func (v *Vocabulary) EncodeAll(terms []string) []int {
	ids := make([]int, len(terms))
	for i, t := range terms {
		ids[i] = v.Encode(t)
	}
	return ids
}

// Decode returns the term with the given ID.
func (v *Vocabulary) Decode(id int) (string, bool) {
	if id < 0 || id >= len(v.terms) {
		return "", false
	}
	return v.terms[id], true
}

// DecodeAll decodes each ID. IDs out of range are decoded as UnknownToken.
func (v *Vocabulary) DecodeAll(ids []int) []string {
	terms := make([]string, len(ids))
	for i, id := range ids {
		t, ok := v.Decode(id)
		if !ok {
			t = UnknownToken
		}
		terms[i] = t
	}
	return terms
}

func (v *Vocabulary) Unknown() int { return v.unk }
func (v *Vocabulary) Pad() int     { return v.pad }
func (v *Vocabulary) Begin() int   { return v.bos }
func (v *Vocabulary) End() int     { return v.eos }

// Markers returns the decoder markers of the vocabulary.
func (v *Vocabulary) Markers() decoder.Markers {
	return decoder.Markers{
		Begin: v.bos,
		End:   v.eos,
		Pad:   v.pad,
	}
}
