// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/downloader"
	"github.com/nlpodyssey/beamflow/scorer/ngram"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment variables overriding the
// configuration file, e.g. BEAMFLOW_DECODING_BEAM_WIDTH.
const EnvPrefix = "BEAMFLOW"

// Config is the configuration of the beamflow command.
type Config struct {
	// ModelDir is the directory of the prepared model.
	ModelDir string `yaml:"model_dir" envconfig:"MODEL_DIR"`
	// Workers is the number of goroutines scoring each batch. Zero means one
	// per CPU.
	Workers  int      `yaml:"workers" envconfig:"WORKERS"`
	Decoding Decoding `yaml:"decoding" envconfig:"DECODING"`
	Corpus   Corpus   `yaml:"corpus" envconfig:"CORPUS"`
	Server   Server   `yaml:"server" envconfig:"SERVER"`
}

// Decoding contains the decoding options.
type Decoding struct {
	BeamWidth     int     `yaml:"beam_width" envconfig:"BEAM_WIDTH"`
	MaxHypotheses int     `yaml:"max_hypotheses" envconfig:"MAX_HYPOTHESES"`
	MaxLen        int     `yaml:"max_len" envconfig:"MAX_LEN"`
	Decay         float64 `yaml:"decay" envconfig:"DECAY"`
	// Greedy selects greedy decoding instead of beam search.
	Greedy bool `yaml:"greedy" envconfig:"GREEDY"`
}

// Corpus contains where the parallel corpus comes from and how it is turned
// into a model.
type Corpus struct {
	URL             string       `yaml:"url" envconfig:"URL"`
	Dir             string       `yaml:"dir" envconfig:"DIR"`
	SourceTokenizer string       `yaml:"source_tokenizer" envconfig:"SOURCE_TOKENIZER"`
	TargetTokenizer string       `yaml:"target_tokenizer" envconfig:"TARGET_TOKENIZER"`
	MinFreq         int          `yaml:"min_freq" envconfig:"MIN_FREQ"`
	MaxWords        int          `yaml:"max_words" envconfig:"MAX_WORDS"`
	ValidFraction   float64      `yaml:"valid_fraction" envconfig:"VALID_FRACTION"`
	Seed            int64        `yaml:"seed" envconfig:"SEED"`
	NGram           ngram.Config `yaml:"ngram" envconfig:"NGRAM"`
}

// Server contains the settings of the network services.
type Server struct {
	GRPCAddress string   `yaml:"grpc_address" envconfig:"GRPC_ADDRESS"`
	HTTPAddress string   `yaml:"http_address" envconfig:"HTTP_ADDRESS"`
	CORSOrigins []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	// DBFilename is the SQLite database caching the translations. An empty
	// name disables the cache.
	DBFilename string `yaml:"db_filename" envconfig:"DB_FILENAME"`
}

// Default returns the default configuration.
func Default() Config {
	opts := decoder.DefaultOptions()
	pc := beamflow.DefaultPrepareConfig()
	return Config{
		ModelDir: "models/fra-eng",
		Decoding: Decoding{
			BeamWidth:     opts.BeamWidth,
			MaxHypotheses: opts.MaxHypotheses,
			MaxLen:        opts.MaxLen,
			Decay:         opts.Decay,
		},
		Corpus: Corpus{
			URL:             downloader.DefaultURL,
			Dir:             "corpus",
			SourceTokenizer: string(tokenizer.English),
			TargetTokenizer: string(tokenizer.French),
			MinFreq:         pc.MinFreq,
			MaxWords:        pc.MaxWords,
			ValidFraction:   pc.ValidFraction,
			Seed:            pc.Seed,
			NGram:           pc.NGram,
		},
		Server: Server{
			GRPCAddress: ":50051",
			HTTPAddress: ":8080",
			CORSOrigins: []string{"*"},
			DBFilename:  "beamflow.sqlite",
		},
	}
}

// Load returns the default configuration, overridden by the YAML file, if
// any, and then by the environment variables. A missing file is an error
// only when required is true.
func Load(filename string, required bool) (Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("error unmarshaling configuration file: %w", err)
			}
		case required || !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("error reading configuration file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("error reading environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the decoding options.
func (c Config) Validate() error {
	return c.DecodingOptions().Validate()
}

// DecodingOptions returns the options of the decoder.
func (c Config) DecodingOptions() decoder.Options {
	return decoder.Options{
		BeamWidth:     c.Decoding.BeamWidth,
		MaxHypotheses: c.Decoding.MaxHypotheses,
		MaxLen:        c.Decoding.MaxLen,
		Decay:         c.Decoding.Decay,
	}
}

// PrepareConfig returns the options to build the model directory.
func (c Config) PrepareConfig() beamflow.PrepareConfig {
	return beamflow.PrepareConfig{
		ModelConfig: beamflow.ModelConfig{
			SourceTokenizer: c.Corpus.SourceTokenizer,
			TargetTokenizer: c.Corpus.TargetTokenizer,
		},
		MinFreq:       c.Corpus.MinFreq,
		MaxWords:      c.Corpus.MaxWords,
		ValidFraction: c.Corpus.ValidFraction,
		Seed:          c.Corpus.Seed,
		NGram:         c.Corpus.NGram,
	}
}
