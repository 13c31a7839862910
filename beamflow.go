// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package beamflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/beamflow/scorer"
	"github.com/nlpodyssey/beamflow/scorer/ngram"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/nlpodyssey/beamflow/vocabulary"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Files of a model directory.
const (
	SourceVocabularyFilename = "src_vocab.json"
	TargetVocabularyFilename = "tgt_vocab.json"
	ModelConfigFilename      = "config.yaml"
)

// Translation is a decoded target sentence.
type Translation struct {
	// Text is the detokenized sentence.
	Text string `json:"text"`
	// Tokens are the generated tokens, without the begin and end markers.
	Tokens []string `json:"tokens"`
	// Likelihood is the likelihood of the hypothesis the translation comes from.
	Likelihood float64 `json:"likelihood"`
	// Terminated reports whether the end marker was generated before the
	// maximum length was reached.
	Terminated bool `json:"terminated"`
}

// Cache stores the ranked translations of previously translated sentences.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the translations cached for the text and the options.
	Get(ctx context.Context, text string, opts decoder.Options) ([]Translation, bool, error)
	// Put caches the translations of the text obtained with the options.
	Put(ctx context.Context, text string, opts decoder.Options, translations []Translation) error
}

// ModelConfig describes how the text of a model directory is tokenized.
type ModelConfig struct {
	// SourceTokenizer is the name of the source tokenizer (see tokenizer.Load).
	SourceTokenizer string `yaml:"source_tokenizer"`
	// TargetTokenizer is the name of the target tokenizer (see tokenizer.Load).
	TargetTokenizer string `yaml:"target_tokenizer"`
}

// Components holds the parts a Translator is made of.
type Components struct {
	SourceVocabulary *vocabulary.Vocabulary
	TargetVocabulary *vocabulary.Vocabulary
	SourceTokenizer  tokenizer.Tokenizer
	TargetTokenizer  tokenizer.Tokenizer
	Scorer           decoder.Scorer
	// Options are the default decoding options.
	Options decoder.Options
	// Cache is optional.
	Cache Cache
}

// Translator translates sentences with beam search or greedy decoding.
// It is safe for concurrent use.
type Translator struct {
	encoder         *encoder.Encoder
	sourceVocab     *vocabulary.Vocabulary
	targetVocab     *vocabulary.Vocabulary
	targetTokenizer tokenizer.Tokenizer
	scorer          decoder.Scorer
	opts            decoder.Options
	cache           Cache
}

// New returns a new Translator.
func New(c Components) (*Translator, error) {
	switch {
	case c.SourceVocabulary == nil || c.TargetVocabulary == nil:
		return nil, fmt.Errorf("%w: missing vocabulary", decoder.ErrInvalidConfiguration)
	case c.SourceTokenizer == nil || c.TargetTokenizer == nil:
		return nil, fmt.Errorf("%w: missing tokenizer", decoder.ErrInvalidConfiguration)
	}
	// fail early on invalid default options
	if _, err := decoder.New(c.Scorer, c.TargetVocabulary.Markers(), c.Options); err != nil {
		return nil, err
	}
	return &Translator{
		encoder:         encoder.New(c.SourceTokenizer, c.SourceVocabulary),
		sourceVocab:     c.SourceVocabulary,
		targetVocab:     c.TargetVocabulary,
		targetTokenizer: c.TargetTokenizer,
		scorer:          c.Scorer,
		opts:            c.Options,
		cache:           c.Cache,
	}, nil
}

// Load loads a Translator from the given model directory, scoring with the
// n-gram model it contains. Each batch is scored by up to workers
// goroutines; zero means one per CPU.
func Load(modelDir string, opts decoder.Options, workers int) (*Translator, error) {
	c, err := loadComponents(modelDir)
	if err != nil {
		return nil, err
	}
	model, err := ngram.Load(filepath.Join(modelDir, ngram.DefaultFilename))
	if err != nil {
		return nil, err
	}
	srcSize, tgtSize := c.SourceVocabulary.Size(), c.TargetVocabulary.Size()
	if model.SourceSize != srcSize || model.TargetSize != tgtSize {
		return nil, fmt.Errorf("model sizes (%d, %d) do not match the vocabularies (%d, %d)",
			model.SourceSize, model.TargetSize, srcSize, tgtSize)
	}
	if model.Special != specialOf(c.TargetVocabulary) {
		return nil, fmt.Errorf("model reserved IDs %+v do not match the target vocabulary", model.Special)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	c.Scorer = scorer.Parallel(model, workers)
	c.Options = opts
	return New(c)
}

// LoadWithScorer is like Load, but decodes with the given scorer instead of
// the n-gram model of the directory. The scorer must share the vocabularies
// of the directory.
func LoadWithScorer(modelDir string, opts decoder.Options, s decoder.Scorer) (*Translator, error) {
	c, err := loadComponents(modelDir)
	if err != nil {
		return nil, err
	}
	c.Scorer = s
	c.Options = opts
	return New(c)
}

func loadComponents(modelDir string) (Components, error) {
	mc, err := LoadModelConfig(filepath.Join(modelDir, ModelConfigFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Components{}, fmt.Errorf("error: unable to find the model directory '%s'. Please ensure that the corpus has been downloaded and the model prepared before trying again", modelDir)
		}
		return Components{}, err
	}
	srcTokenizer, err := tokenizer.Load(mc.SourceTokenizer, modelDir)
	if err != nil {
		return Components{}, err
	}
	tgtTokenizer, err := tokenizer.Load(mc.TargetTokenizer, modelDir)
	if err != nil {
		return Components{}, err
	}
	srcVocab, err := vocabulary.Load(filepath.Join(modelDir, SourceVocabularyFilename))
	if err != nil {
		return Components{}, err
	}
	tgtVocab, err := vocabulary.Load(filepath.Join(modelDir, TargetVocabularyFilename))
	if err != nil {
		return Components{}, err
	}
	log.Debug().Msgf("Loaded model from %s (source vocabulary: %d, target vocabulary: %d)", modelDir, srcVocab.Size(), tgtVocab.Size())

	return Components{
		SourceVocabulary: srcVocab,
		TargetVocabulary: tgtVocab,
		SourceTokenizer:  srcTokenizer,
		TargetTokenizer:  tgtTokenizer,
	}, nil
}

// LoadModelConfig reads a ModelConfig from a YAML file.
func LoadModelConfig(filename string) (ModelConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ModelConfig{}, err
	}
	var mc ModelConfig
	if err = yaml.Unmarshal(data, &mc); err != nil {
		return ModelConfig{}, fmt.Errorf("parsing model config %s: %w", filename, err)
	}
	return mc, nil
}

// SetCache sets the cache consulted before decoding. A nil cache disables caching.
// It must not be called concurrently with the translation methods.
func (t *Translator) SetCache(c Cache) {
	t.cache = c
}

// Options returns the default decoding options.
func (t *Translator) Options() decoder.Options {
	return t.opts
}

// Scorer returns the scorer used for decoding.
func (t *Translator) Scorer() decoder.Scorer {
	return t.scorer
}

// Encode returns the source sequence of the text.
func (t *Translator) Encode(text string) ([]int, error) {
	return t.encoder.Encode(text)
}

// Translate returns the translations of the text found by beam search, most
// likely first.
func (t *Translator) Translate(ctx context.Context, text string, opts decoder.Options) ([]Translation, error) {
	if t.cache != nil {
		cached, ok, err := t.cache.Get(ctx, text, opts)
		if err != nil {
			log.Warn().Err(err).Msg("translation cache lookup failed")
		} else if ok {
			log.Trace().Msgf("Cache hit for %q", text)
			return cached, nil
		}
	}

	translations, err := t.translate(ctx, text, opts, nil)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		if err = t.cache.Put(ctx, text, opts, translations); err != nil {
			log.Warn().Err(err).Msg("failed to cache translations")
		}
	}
	return translations, nil
}

// TranslateStream is like Translate, but it writes a StepResult to the buffer
// after each beam search step. The cache is not used. The buffer is closed
// before returning.
func (t *Translator) TranslateStream(ctx context.Context, text string, opts decoder.Options, buf decoder.Buffer) ([]Translation, error) {
	return t.translate(ctx, text, opts, buf)
}

func (t *Translator) translate(ctx context.Context, text string, opts decoder.Options, buf decoder.Buffer) ([]Translation, error) {
	d, err := decoder.New(t.scorer, t.targetVocab.Markers(), opts)
	if err != nil {
		if buf != nil {
			buf.Close()
		}
		return nil, err
	}
	source, err := t.encoder.Encode(text)
	if err != nil {
		if buf != nil {
			buf.Close()
		}
		return nil, err
	}

	var hyps []decoder.Hypothesis
	if buf != nil {
		hyps, err = d.BeamSearchStream(ctx, source, buf)
	} else {
		hyps, err = d.BeamSearch(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Translation, len(hyps))
	for i, h := range hyps {
		out[i] = t.Render(h)
	}
	return out, nil
}

// TranslateGreedy returns the translation of the text found by greedy
// decoding. Only MaxLen is taken from the options.
func (t *Translator) TranslateGreedy(ctx context.Context, text string, opts decoder.Options) (Translation, error) {
	d, err := decoder.New(t.scorer, t.targetVocab.Markers(), opts)
	if err != nil {
		return Translation{}, err
	}
	source, err := t.encoder.Encode(text)
	if err != nil {
		return Translation{}, err
	}
	h, err := d.GreedySearch(ctx, source)
	if err != nil {
		return Translation{}, err
	}
	return t.Render(h), nil
}

// Render converts a hypothesis into a Translation.
func (t *Translator) Render(h decoder.Hypothesis) Translation {
	markers := t.targetVocab.Markers()
	tokens := t.targetVocab.DecodeAll(h.Content(markers))
	return Translation{
		Text:       tokenizer.Beautify(t.targetTokenizer.Detokenize(tokens)),
		Tokens:     tokens,
		Likelihood: h.Likelihood,
		Terminated: h.Terminated(markers.End),
	}
}
