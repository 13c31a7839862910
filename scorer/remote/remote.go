// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remote implements a decoder.Scorer backed by a gRPC Scorer service.
package remote

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/beamflow/api"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

// Scorer forwards each batch to a remote Scorer service in a single call.
type Scorer struct {
	client api.ScorerClient
	conn   *grpc.ClientConn
}

var _ decoder.Scorer = &Scorer{}

// Dial connects to the Scorer service at the given address. The connection
// is insecure unless opts say otherwise.
func Dial(ctx context.Context, address string, opts ...grpc.DialOption) (*Scorer, error) {
	opts = append([]grpc.DialOption{grpc.WithInsecure()}, opts...)
	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial scorer at %s: %w", address, err)
	}
	log.Debug().Msgf("Connected to remote scorer at %s", address)
	return &Scorer{client: api.NewScorerClient(conn), conn: conn}, nil
}

// New returns a Scorer using an existing connection, which is not closed by Close.
func New(cc grpc.ClientConnInterface) *Scorer {
	return &Scorer{client: api.NewScorerClient(cc)}
}

// Score implements decoder.Scorer.
func (s *Scorer) Score(ctx context.Context, sources, prefixes [][]int) ([][]float64, error) {
	res, err := s.client.Score(ctx, &api.ScoreRequest{
		Sources:  sources,
		Prefixes: prefixes,
	})
	if err != nil {
		return nil, fmt.Errorf("remote scorer: %w", err)
	}
	return res.Distributions, nil
}

// Close closes the connection opened by Dial.
func (s *Scorer) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
