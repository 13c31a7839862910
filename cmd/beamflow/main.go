// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/nlpodyssey/beamflow/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	r := &runner{}
	app := &cli.App{
		Name:  "beamflow",
		Usage: "Translate English sentences to French with beam search decoding",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set log level (trace, debug, info, warn, error, fatal, panic)",
				Value:   "info",
				EnvVars: []string{"BEAMFLOW_LOGLEVEL"},
			},
			&cli.BoolFlag{
				Name:  "json-log",
				Usage: "log messages in JSON format",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "the path to the YAML configuration file",
				Value: "beamflow.yaml",
			},
			&cli.StringFlag{
				Name:  "model-dir",
				Usage: "directory of the model to operate on (overrides the configuration)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c.Bool("json-log"), c.String("log-level")); err != nil {
				return err
			}
			cfg, err := config.Load(c.String("config"), c.IsSet("config"))
			if err != nil {
				return err
			}
			if c.IsSet("model-dir") {
				cfg.ModelDir = c.String("model-dir")
			}
			r.cfg = cfg
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "download",
				Usage:  "Download the parallel corpus",
				Action: r.download,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "the URL of the zip archive (overrides the configuration)",
					},
					&cli.StringFlag{
						Name:  "dir",
						Usage: "the directory to download the corpus to (overrides the configuration)",
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "download the archive even if it already exists",
					},
				},
			},
			{
				Name:   "prepare",
				Usage:  "Build the vocabularies and train the scorer of the model directory",
				Action: r.prepare,
				Flags:  []cli.Flag{corpusFlag},
			},
			{
				Name:      "translate",
				Usage:     "Translate the sentences given as arguments, or read from stdin one per line",
				ArgsUsage: "[sentence...]",
				Action:    r.translate,
				Flags: append(decodingFlags(),
					scorerAddressFlag,
					&cli.IntFlag{
						Name:  "top",
						Usage: "the number of translations to show for each sentence",
						Value: 3,
					},
				),
			},
			{
				Name:   "evaluate",
				Usage:  "Report the top-k accuracy of the scorer on the validation pairs",
				Action: r.evaluate,
				Flags: []cli.Flag{
					corpusFlag,
					scorerAddressFlag,
					&cli.IntSliceFlag{
						Name:  "k",
						Usage: "the values of k to report",
						Value: cli.NewIntSlice(1, 5, 10),
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the gRPC and HTTP translation endpoints",
				Action: r.serve,
				Flags: append(decodingFlags(),
					&cli.StringFlag{
						Name:  "address",
						Usage: "the address to listen on for gRPC connections (overrides the configuration)",
					},
					&cli.StringFlag{
						Name:  "http-address",
						Usage: "the address to listen on for HTTP connections (overrides the configuration)",
					},
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "disable the translation cache",
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

var corpusFlag = &cli.StringFlag{
	Name:  "corpus",
	Usage: "the tab-delimited corpus file; if not specified, the corpus is downloaded",
}

var scorerAddressFlag = &cli.StringFlag{
	Name:  "scorer-address",
	Usage: "the address of a remote gRPC scorer to use instead of the local model",
}

func decodingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "beam-width",
			Usage: "the number of next tokens expanded for each hypothesis",
		},
		&cli.IntFlag{
			Name:  "max-hypotheses",
			Usage: "the number of hypotheses retained at each step",
		},
		&cli.IntFlag{
			Name:  "max-len",
			Usage: "the maximum length of a translation, begin marker included",
		},
		&cli.Float64Flag{
			Name:  "decay",
			Usage: "the likelihood discount of the terminated hypotheses at each step",
		},
		&cli.BoolFlag{
			Name:  "greedy",
			Usage: "use greedy decoding instead of beam search",
		},
	}
}

// applyDecodingFlags overrides the configured decoding options with the
// flags set on the command line.
func applyDecodingFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("beam-width") {
		cfg.Decoding.BeamWidth = c.Int("beam-width")
	}
	if c.IsSet("max-hypotheses") {
		cfg.Decoding.MaxHypotheses = c.Int("max-hypotheses")
	}
	if c.IsSet("max-len") {
		cfg.Decoding.MaxLen = c.Int("max-len")
	}
	if c.IsSet("decay") {
		cfg.Decoding.Decay = c.Float64("decay")
	}
	if c.IsSet("greedy") {
		cfg.Decoding.Greedy = c.Bool("greedy")
	}
	return cfg.Validate()
}

func setupLogger(jsonLog bool, logLevel string) error {
	if jsonLog {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	log.Logger = log.Logger.Level(level)
	return nil
}
