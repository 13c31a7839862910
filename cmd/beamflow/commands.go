// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/config"
	"github.com/nlpodyssey/beamflow/corpus"
	"github.com/nlpodyssey/beamflow/downloader"
	"github.com/nlpodyssey/beamflow/evaluation"
	"github.com/nlpodyssey/beamflow/httpserver"
	"github.com/nlpodyssey/beamflow/scorer/remote"
	"github.com/nlpodyssey/beamflow/service"
	"github.com/nlpodyssey/beamflow/store"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// runner holds the configuration shared by the commands.
type runner struct {
	cfg config.Config
}

func (r *runner) download(c *cli.Context) error {
	url, dir := r.cfg.Corpus.URL, r.cfg.Corpus.Dir
	if c.IsSet("url") {
		url = c.String("url")
	}
	if c.IsSet("dir") {
		dir = c.String("dir")
	}
	log.Debug().Msgf("Downloading corpus in dir: %s", dir)
	filename, err := downloader.Download(c.Context, url, dir, c.Bool("overwrite"))
	if err != nil {
		return err
	}
	log.Info().Msgf("Corpus available at %s", filename)
	return nil
}

// loadPairs reads the corpus given by the flag, downloading the configured
// one when the flag is not set.
func (r *runner) loadPairs(c *cli.Context) ([]corpus.Pair, error) {
	filename := c.String("corpus")
	if filename == "" {
		var err error
		filename, err = downloader.Download(c.Context, r.cfg.Corpus.URL, r.cfg.Corpus.Dir, false)
		if err != nil {
			return nil, err
		}
	}
	pairs, err := corpus.Load(filename)
	if err != nil {
		return nil, err
	}
	log.Debug().Msgf("Read %d pairs from %s", len(pairs), filename)
	return pairs, nil
}

func (r *runner) prepare(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
	defer stop()

	pairs, err := r.loadPairs(c)
	if err != nil {
		return err
	}
	log.Debug().Msgf("Preparing model in dir: %s", r.cfg.ModelDir)
	valid, err := beamflow.Prepare(ctx, pairs, r.cfg.ModelDir, r.cfg.PrepareConfig())
	if err != nil {
		return err
	}
	log.Info().Msgf("Done. %d pairs are held out for evaluation.", len(valid))
	return nil
}

// loadTranslator loads the translator of the model directory, scoring with
// the remote scorer when its address is given. The returned function
// releases the remote connection.
func (r *runner) loadTranslator(c *cli.Context) (*beamflow.Translator, func(), error) {
	opts := r.cfg.DecodingOptions()
	address := c.String("scorer-address")
	if address == "" {
		log.Debug().Msgf("Loading model from %s", r.cfg.ModelDir)
		t, err := beamflow.Load(r.cfg.ModelDir, opts, r.cfg.Workers)
		return t, func() {}, err
	}

	log.Debug().Msgf("Using remote scorer at %s", address)
	rs, err := remote.Dial(c.Context, address)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := rs.Close(); err != nil {
			log.Warn().Err(err).Msgf("failed to close connection to %q", address)
		}
	}
	t, err := beamflow.LoadWithScorer(r.cfg.ModelDir, opts, rs)
	if err != nil {
		release()
		return nil, nil, err
	}
	return t, release, nil
}

func (r *runner) translate(c *cli.Context) error {
	if err := applyDecodingFlags(c, &r.cfg); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
	defer stop()

	t, release, err := r.loadTranslator(c)
	if err != nil {
		return err
	}
	defer release()

	translateOne := func(text string) error {
		translations, err := r.translateText(ctx, t, text)
		if err != nil {
			return err
		}
		if top := c.Int("top"); top > 0 && len(translations) > top {
			translations = translations[:top]
		}
		fmt.Fprintln(c.App.Writer, renderTranslations(text, translations))
		return nil
	}

	if c.NArg() > 0 {
		for _, text := range c.Args().Slice() {
			if err = translateOne(text); err != nil {
				return err
			}
		}
		return nil
	}
	return forEachLine(os.Stdin, translateOne)
}

func (r *runner) translateText(ctx context.Context, t *beamflow.Translator, text string) ([]beamflow.Translation, error) {
	if r.cfg.Decoding.Greedy {
		tr, err := t.TranslateGreedy(ctx, text, t.Options())
		if err != nil {
			return nil, err
		}
		return []beamflow.Translation{tr}, nil
	}
	return t.Translate(ctx, text, t.Options())
}

// forEachLine calls fn with each non-blank line read from r.
func forEachLine(r io.Reader, fn func(string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (r *runner) evaluate(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
	defer stop()

	t, release, err := r.loadTranslator(c)
	if err != nil {
		return err
	}
	defer release()

	pairs, err := r.loadPairs(c)
	if err != nil {
		return err
	}
	_, valid, err := beamflow.SplitCorpus(pairs, r.cfg.ModelDir, r.cfg.PrepareConfig())
	if err != nil {
		return err
	}
	log.Info().Msgf("Evaluating on %d pairs", len(valid))

	res, err := evaluation.TopKAccuracy(ctx, t.Scorer(), t.EvaluationExamples(valid), t.PadID(), c.IntSlice("k")...)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, renderEvaluation(res))
	return nil
}

func (r *runner) serve(c *cli.Context) error {
	if err := applyDecodingFlags(c, &r.cfg); err != nil {
		return err
	}
	grpcAddress, httpAddress := r.cfg.Server.GRPCAddress, r.cfg.Server.HTTPAddress
	if c.IsSet("address") {
		grpcAddress = c.String("address")
	}
	if c.IsSet("http-address") {
		httpAddress = c.String("http-address")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, os.Kill)
	defer stop()

	log.Debug().Msgf("Loading model from %s", r.cfg.ModelDir)
	t, err := beamflow.Load(r.cfg.ModelDir, r.cfg.DecodingOptions(), r.cfg.Workers)
	if err != nil {
		return err
	}

	if filename := r.cfg.Server.DBFilename; filename != "" && !c.Bool("no-cache") {
		db, err := store.Open(filename)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close the translation cache")
			}
		}()
		t.SetCache(db)
		log.Info().Msgf("Caching translations in %s", filename)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.NewServer(t, nil).Start(ctx, grpcAddress)
	})
	if httpAddress != "" {
		g.Go(func() error {
			hs := httpserver.New(t, httpserver.Config{
				Decoding:    r.cfg.DecodingOptions(),
				Greedy:      r.cfg.Decoding.Greedy,
				CORSOrigins: r.cfg.Server.CORSOrigins,
			})
			return hs.Start(ctx, httpAddress)
		})
	}
	return g.Wait()
}
