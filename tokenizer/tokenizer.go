// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nlpodyssey/beamflow/tokenizer/internal/bpetokenizer"
)

// Tokenizer is the interface that wraps the basic tokenizers methods.
type Tokenizer interface {
	// Tokenize splits the given text into a sequence of tokens.
	Tokenize(text string) ([]string, error)
	// Detokenize returns the text corresponding to the given sequence of tokens.
	Detokenize(tokens []string) string
}

// bpePrefix introduces the directory of a BPE model in a tokenizer name.
const bpePrefix = "bpe:"

// Load returns the tokenizer identified by name: a language code ("en", "fr")
// for the word tokenizer, or "bpe:" followed by a directory containing
// vocab.json and merges.txt. Relative BPE directories are resolved from dir.
func Load(name, dir string) (Tokenizer, error) {
	if path, ok := strings.CutPrefix(name, bpePrefix); ok {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return LoadBPE(path)
	}
	tk, err := NewWordTokenizer(Language(name))
	if err != nil {
		return nil, fmt.Errorf("unknown tokenizer %q: %w", name, err)
	}
	return tk, nil
}

// LoadBPE loads a byte-level BPE tokenizer from the given directory.
func LoadBPE(path string) (Tokenizer, error) {
	tk, err := bpetokenizer.Load(path)
	if err != nil {
		return nil, err
	}
	return tk, nil
}
