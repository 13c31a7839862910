// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, decoder.DefaultOptions(), cfg.DecodingOptions())
	assert.False(t, cfg.Decoding.Greedy)
	assert.Equal(t, beamflow.DefaultPrepareConfig(), cfg.PrepareConfig())
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	filename := writeFile(t, `
model_dir: /tmp/model
decoding:
  beam_width: 3
  greedy: true
corpus:
  min_freq: 1
  ngram:
    iterations: 2
server:
  cors_origins: ["http://localhost:3000"]
`)

	cfg, err := Load(filename, true)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/model", cfg.ModelDir)
	assert.Equal(t, decoder.Options{BeamWidth: 3, MaxHypotheses: 10, MaxLen: 30, Decay: decoder.DefaultDecay}, cfg.DecodingOptions())
	assert.True(t, cfg.Decoding.Greedy)
	assert.Equal(t, 1, cfg.Corpus.MinFreq)
	assert.Equal(t, 30, cfg.Corpus.MaxWords)
	assert.Equal(t, 2, cfg.Corpus.NGram.Iterations)
	assert.Equal(t, 0.5, cfg.Corpus.NGram.Lambda)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddress)
}

func TestLoadEnvironment(t *testing.T) {
	filename := writeFile(t, "decoding:\n  beam_width: 3\n")
	t.Setenv("BEAMFLOW_DECODING_BEAM_WIDTH", "7")
	t.Setenv("BEAMFLOW_DECODING_DECAY", "0.5")
	t.Setenv("BEAMFLOW_MODEL_DIR", "env-model")
	t.Setenv("BEAMFLOW_SERVER_CORS_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("BEAMFLOW_CORPUS_NGRAM_LAMBDA", "0.25")

	cfg, err := Load(filename, true)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Decoding.BeamWidth)
	assert.Equal(t, 0.5, cfg.Decoding.Decay)
	assert.Equal(t, "env-model", cfg.ModelDir)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 0.25, cfg.Corpus.NGram.Lambda)
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := Load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, true)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeFile(t, "decoding: [1, 2"), true)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "decoding:\n  max_len: 1\n"), true)
	assert.ErrorIs(t, err, decoder.ErrInvalidConfiguration)

	t.Setenv("BEAMFLOW_DECODING_BEAM_WIDTH", "wide")
	_, err = Load("", false)
	assert.Error(t, err)
}
