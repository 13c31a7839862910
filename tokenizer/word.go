// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Language identifies the rules of a WordTokenizer.
type Language string

const (
	English Language = "en"
	French  Language = "fr"
)

// ErrUnsupportedLanguage is returned for a language without word rules.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// frenchInversion matches the pronouns which follow a verb in a hyphenated
// inversion, like "-vous" in "parlez-vous" or "-t-il" in "a-t-il".
const frenchInversion = `(?:t-)?(?:je|tu|il|elle|on|nous|vous|ils|elles|moi|toi|lui|leur|le|la|les|en|y|ce|ci|là)\b`

var wordRules = map[Language]*regexp2.Regexp{
	English: regexp2.MustCompile(
		`\w+(?=n't\b)`+ // "do" in "don't"
			`|n't\b`+
			`|'(?:s|re|ve|ll|d|m)\b`+
			`|\w+(?:[-.]\w+)*`+
			`|[^\w\s]`,
		regexp2.IgnoreCase),
	French: regexp2.MustCompile(
		`\b(?:jusqu|lorsqu|puisqu|quoiqu|qu|[cdjlmnst])['’]`+
			`|-`+frenchInversion+
			`|\w+(?:-(?!`+frenchInversion+`)\w+)*`+
			`|[^\w\s]`,
		regexp2.IgnoreCase),
}

// WordTokenizer splits sentences into words and punctuation marks, separating
// English contractions, French elisions and French hyphenated inversions.
// The case of the text is preserved.
type WordTokenizer struct {
	lang Language
	re   *regexp2.Regexp
}

// NewWordTokenizer returns a WordTokenizer for the given language.
func NewWordTokenizer(lang Language) (*WordTokenizer, error) {
	re, ok := wordRules[lang]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedLanguage, lang)
	}
	return &WordTokenizer{lang: lang, re: re}, nil
}

// Language returns the language of the tokenizer.
func (t *WordTokenizer) Language() Language {
	return t.lang
}

// Tokenize splits the text into tokens.
func (t *WordTokenizer) Tokenize(text string) ([]string, error) {
	var tokens []string
	m, err := t.re.FindStringMatch(text)
	for ; m != nil && err == nil; m, err = t.re.FindNextMatch(m) {
		tokens = append(tokens, m.String())
	}
	if err != nil {
		return nil, fmt.Errorf("tokenizing %q: %w", text, err)
	}
	return tokens, nil
}

// Detokenize joins the tokens with spaces and removes the useless ones.
func (t *WordTokenizer) Detokenize(tokens []string) string {
	return Beautify(strings.Join(tokens, " "))
}
