// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package corpus reads and prepares tab separated bilingual corpora, where
// each line holds a source sentence, its translation and an optional
// attribution.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/rs/zerolog/log"
)

// Pair is a source sentence with its translation.
type Pair struct {
	Source      string
	Target      string
	Attribution string
}

// TokenizedPair is a Pair split into tokens.
type TokenizedPair struct {
	Source []string
	Target []string
}

// ReadTSV reads the pairs from r, one per line. Empty lines are skipped.
func ReadTSV(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 tab separated columns, got %d", line, len(fields))
		}
		p := Pair{Source: fields[0], Target: fields[1]}
		if len(fields) > 2 {
			p.Attribution = fields[2]
		}
		pairs = append(pairs, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Load reads the pairs from the given TSV file.
func Load(filename string) ([]Pair, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Err(err).Str("filename", filename).Msg("failed to close corpus file")
		}
	}()
	pairs, err := ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", filename, err)
	}
	log.Debug().Msgf("Loaded %d pairs from %s", len(pairs), filename)
	return pairs, nil
}

// Filter tokenizes both sides of each pair and keeps the pairs whose sides
// both have fewer than maxWords tokens. Newlines are removed before
// tokenization. Pairs with an empty side are dropped.
func Filter(pairs []Pair, srcTokenizer, tgtTokenizer tokenizer.Tokenizer, maxWords int) ([]TokenizedPair, error) {
	out := make([]TokenizedPair, 0, len(pairs))
	for _, p := range pairs {
		src, err := srcTokenizer.Tokenize(stripNewlines(p.Source))
		if err != nil {
			return nil, err
		}
		tgt, err := tgtTokenizer.Tokenize(stripNewlines(p.Target))
		if err != nil {
			return nil, err
		}
		if len(src) == 0 || len(tgt) == 0 || len(src) >= maxWords || len(tgt) >= maxWords {
			continue
		}
		out = append(out, TokenizedPair{Source: src, Target: tgt})
	}
	log.Debug().Msgf("Kept %d of %d pairs with fewer than %d tokens", len(out), len(pairs), maxWords)
	return out, nil
}

func stripNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "")
}

// Split shuffles a copy of items with the given seed and splits it into a
// training and a validation set, the latter holding validFraction of the
// items. The same seed always produces the same split.
func Split[T any](items []T, validFraction float64, seed int64) (train, valid []T) {
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := int(float64(len(shuffled)) * validFraction)
	switch {
	case n < 0:
		n = 0
	case n > len(shuffled):
		n = len(shuffled)
	}
	return shuffled[n:], shuffled[:n]
}

// Sources returns the source side of each pair.
func Sources(pairs []TokenizedPair) [][]string {
	out := make([][]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Source
	}
	return out
}

// Targets returns the target side of each pair.
func Targets(pairs []TokenizedPair) [][]string {
	out := make([][]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Target
	}
	return out
}
