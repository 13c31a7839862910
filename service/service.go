// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/api"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/encoder"
	"github.com/nlpodyssey/beamflow/scorer/ngram"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server exposes a Translator, and the scorer behind it, over gRPC.
type Server struct {
	api.UnimplementedTranslatorServer
	api.UnimplementedScorerServer
	translator *beamflow.Translator
	scorer     decoder.Scorer
	health     *health.Server
	grpcServer *grpc.Server
}

// NewServer returns a new Server. If scorer is nil, the scorer of the
// translator is exposed.
func NewServer(translator *beamflow.Translator, scorer decoder.Scorer) *Server {
	if scorer == nil {
		scorer = translator.Scorer()
	}
	return &Server{
		translator: translator,
		scorer:     scorer,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(),
	}
}

// Start listens on the address and serves until the context is done.
func (s *Server) Start(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Info().Msgf("gRPC server listening on %s", lis.Addr())
	return s.Serve(ctx, lis)
}

// Serve serves on the listener until the context is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	api.RegisterTranslatorServer(s.grpcServer, s)
	api.RegisterScorerServer(s.grpcServer, s)

	s.health.SetServingStatus(api.Translator_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(api.Scorer_ServiceDesc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	go s.shutDownServerWhenContextIsDone(ctx)
	return s.grpcServer.Serve(lis)
}

// shutDownServerWhenContextIsDone shuts down the server when the context is done.
func (s *Server) shutDownServerWhenContextIsDone(ctx context.Context) {
	<-ctx.Done()
	log.Info().Msg("context done, shutting down server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	log.Info().Msg("server shut down successfully")
}

// Translate implements the Translate method of the Translator service.
func (s *Server) Translate(ctx context.Context, req *api.TranslateRequest) (*api.TranslateResponse, error) {
	requestID := uuid.New().String()
	logger := log.With().Str("request_id", requestID).Logger()
	logger.Debug().Msgf("Received translation request: %q", req.GetText())

	opts := decodingOptions(s.translator.Options(), req.GetDecodingParameters())
	start := time.Now()

	var translations []beamflow.Translation
	if req.GetDecodingParameters().GetGreedy() {
		t, err := s.translator.TranslateGreedy(ctx, req.GetText(), opts)
		if err != nil {
			return nil, toStatus(err)
		}
		translations = []beamflow.Translation{t}
	} else {
		var err error
		translations, err = s.translator.Translate(ctx, req.GetText(), opts)
		if err != nil {
			return nil, toStatus(err)
		}
	}
	logger.Debug().Msgf("Inference time: %.2f seconds", time.Since(start).Seconds())

	return &api.TranslateResponse{
		RequestId:    requestID,
		Translations: toAPITranslations(translations),
	}, nil
}

// TranslateStream implements the TranslateStream method of the Translator
// service: one message per beam search step, then the final result.
func (s *Server) TranslateStream(req *api.TranslateRequest, stream api.Translator_TranslateStreamServer) error {
	if req.GetDecodingParameters().GetGreedy() {
		res, err := s.Translate(stream.Context(), req)
		if err != nil {
			return err
		}
		return stream.Send(&api.TranslateStreamResponse{Result: res})
	}

	requestID := uuid.New().String()
	logger := log.With().Str("request_id", requestID).Logger()
	logger.Debug().Msgf("Received streaming translation request: %q", req.GetText())

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	opts := decodingOptions(s.translator.Options(), req.GetDecodingParameters())
	if err := opts.Validate(); err != nil {
		return toStatus(err)
	}
	steps := make(decoder.ChannelBuffer, opts.MaxLen)

	type result struct {
		translations []beamflow.Translation
		err          error
	}
	resCh := make(chan result, 1)
	go func() {
		translations, err := s.translator.TranslateStream(ctx, req.GetText(), opts, steps)
		resCh <- result{translations, err}
	}()

	var sendErr error
	for step := range steps {
		if sendErr != nil {
			continue // drain
		}
		sendErr = stream.Send(&api.TranslateStreamResponse{
			Step: &api.StepUpdate{
				Step:       int32(step.Step),
				PoolSize:   int32(step.PoolSize),
				Active:     int32(step.Active),
				Terminated: int32(step.Terminated),
				Best:       toAPITranslation(s.translator.Render(step.Best)),
			},
		})
		if sendErr != nil {
			cancel()
		}
	}

	res := <-resCh
	if sendErr != nil {
		return sendErr
	}
	if res.err != nil {
		return toStatus(res.err)
	}
	logger.Debug().Msg("Done.")
	return stream.Send(&api.TranslateStreamResponse{
		Result: &api.TranslateResponse{
			RequestId:    requestID,
			Translations: toAPITranslations(res.translations),
		},
	})
}

// Score implements the Score method of the Scorer service.
func (s *Server) Score(ctx context.Context, req *api.ScoreRequest) (*api.ScoreResponse, error) {
	log.Trace().Msgf("Scoring a batch of %d rows", len(req.Prefixes))
	if len(req.Sources) != len(req.Prefixes) {
		return nil, status.Errorf(codes.InvalidArgument, "batch size mismatch: %d sources, %d prefixes", len(req.Sources), len(req.Prefixes))
	}
	dists, err := s.scorer.Score(ctx, req.Sources, req.Prefixes)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ScoreResponse{Distributions: dists}, nil
}

// decodingOptions overrides the defaults with the non-zero parameters.
func decodingOptions(defaults decoder.Options, dp *api.DecodingParameters) decoder.Options {
	opts := defaults
	if v := dp.GetBeamWidth(); v != 0 {
		opts.BeamWidth = int(v)
	}
	if v := dp.GetMaxHypotheses(); v != 0 {
		opts.MaxHypotheses = int(v)
	}
	if v := dp.GetMaxLen(); v != 0 {
		opts.MaxLen = int(v)
	}
	if v := dp.GetDecay(); v != 0 {
		opts.Decay = v
	}
	return opts
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, decoder.ErrInvalidConfiguration),
		errors.Is(err, encoder.ErrEmptySource),
		errors.Is(err, ngram.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		log.Err(err).Msg("request failed")
		return status.Error(codes.Internal, err.Error())
	}
}

func toAPITranslation(t beamflow.Translation) *api.Translation {
	return &api.Translation{
		Text:       t.Text,
		Tokens:     t.Tokens,
		Likelihood: t.Likelihood,
		Terminated: t.Terminated,
	}
}

func toAPITranslations(ts []beamflow.Translation) []*api.Translation {
	out := make([]*api.Translation, len(ts))
	for i, t := range ts {
		out[i] = toAPITranslation(t)
	}
	return out
}
