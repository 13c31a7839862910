// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/beamflow/corpus"
	"github.com/nlpodyssey/beamflow/evaluation"
	"github.com/nlpodyssey/beamflow/scorer/ngram"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/nlpodyssey/beamflow/vocabulary"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PrepareConfig contains the options to build a model directory from a corpus.
type PrepareConfig struct {
	ModelConfig `yaml:",inline"`
	// MinFreq is the minimum number of occurrences of a token to enter a vocabulary.
	MinFreq int `yaml:"min_freq"`
	// MaxWords drops the pairs with a side of MaxWords tokens or more.
	MaxWords int `yaml:"max_words"`
	// ValidFraction is the fraction of the pairs held out for evaluation.
	ValidFraction float64 `yaml:"valid_fraction"`
	// Seed drives the split between training and validation pairs.
	Seed int64 `yaml:"seed"`
	// NGram contains the training hyperparameters of the scorer.
	NGram ngram.Config `yaml:"ngram"`
}

// DefaultPrepareConfig returns the default PrepareConfig, for an English to
// French corpus.
func DefaultPrepareConfig() PrepareConfig {
	return PrepareConfig{
		ModelConfig: ModelConfig{
			SourceTokenizer: string(tokenizer.English),
			TargetTokenizer: string(tokenizer.French),
		},
		MinFreq:       2,
		MaxWords:      30,
		ValidFraction: 0.1,
		Seed:          0,
		NGram:         ngram.DefaultConfig(),
	}
}

// SplitCorpus tokenizes and filters the pairs, then splits them into the
// training and validation sets. Tokenizer names are resolved from modelDir.
func SplitCorpus(pairs []corpus.Pair, modelDir string, cfg PrepareConfig) (train, valid []corpus.TokenizedPair, err error) {
	srcTokenizer, err := tokenizer.Load(cfg.SourceTokenizer, modelDir)
	if err != nil {
		return nil, nil, err
	}
	tgtTokenizer, err := tokenizer.Load(cfg.TargetTokenizer, modelDir)
	if err != nil {
		return nil, nil, err
	}
	filtered, err := corpus.Filter(pairs, srcTokenizer, tgtTokenizer, cfg.MaxWords)
	if err != nil {
		return nil, nil, err
	}
	train, valid = corpus.Split(filtered, cfg.ValidFraction, cfg.Seed)
	return train, valid, nil
}

// Prepare builds the vocabularies and trains the n-gram scorer on the
// training split of the pairs, writing everything Load needs into modelDir.
// It returns the validation split.
func Prepare(ctx context.Context, pairs []corpus.Pair, modelDir string, cfg PrepareConfig) ([]corpus.TokenizedPair, error) {
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model directory %s: %w", modelDir, err)
	}
	train, valid, err := SplitCorpus(pairs, modelDir, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Training on %d pairs, %d held out", len(train), len(valid))

	srcVocab := vocabulary.Build(corpus.Sources(train), cfg.MinFreq)
	tgtVocab := vocabulary.Build(corpus.Targets(train), cfg.MinFreq)

	examples := make([]ngram.Example, len(train))
	for i, p := range train {
		examples[i] = ngram.Example{
			Source: encodeTokens(srcVocab, p.Source),
			Target: encodeTokens(tgtVocab, p.Target),
		}
	}
	model, err := ngram.Train(ctx, examples, srcVocab.Size(), tgtVocab.Size(), specialOf(tgtVocab), cfg.NGram)
	if err != nil {
		return nil, err
	}

	if err = srcVocab.Save(filepath.Join(modelDir, SourceVocabularyFilename)); err != nil {
		return nil, err
	}
	if err = tgtVocab.Save(filepath.Join(modelDir, TargetVocabularyFilename)); err != nil {
		return nil, err
	}
	if err = ngram.Dump(model, filepath.Join(modelDir, ngram.DefaultFilename)); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(cfg.ModelConfig)
	if err != nil {
		return nil, err
	}
	if err = os.WriteFile(filepath.Join(modelDir, ModelConfigFilename), data, 0o644); err != nil {
		return nil, err
	}
	log.Info().Msgf("Model saved to %s", modelDir)
	return valid, nil
}

// EvaluationExamples encodes the pairs with the vocabularies of the translator.
func (t *Translator) EvaluationExamples(pairs []corpus.TokenizedPair) []evaluation.Example {
	out := make([]evaluation.Example, len(pairs))
	for i, p := range pairs {
		out[i] = evaluation.Example{
			Source: encodeTokens(t.sourceVocab, p.Source),
			Target: encodeTokens(t.targetVocab, p.Target),
		}
	}
	return out
}

// PadID returns the padding ID of the target vocabulary.
func (t *Translator) PadID() int {
	return t.targetVocab.Pad()
}

func encodeTokens(v *vocabulary.Vocabulary, tokens []string) []int {
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, v.Begin())
	ids = append(ids, v.EncodeAll(tokens)...)
	return append(ids, v.End())
}

func specialOf(v *vocabulary.Vocabulary) ngram.Special {
	return ngram.Special{
		Unknown: v.Unknown(),
		Pad:     v.Pad(),
		Begin:   v.Begin(),
		End:     v.End(),
	}
}
