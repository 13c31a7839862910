// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/encoder"
	corspkg "github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// maxRequestSize is the maximum size of a translation request body.
const maxRequestSize = 1 << 20

// Config contains the configuration of the HTTP server.
type Config struct {
	// Decoding are the decoding options used when a request does not
	// override them.
	Decoding decoder.Options
	// Greedy selects greedy decoding when a request does not say otherwise.
	Greedy bool
	// CORSOrigins is the list of the allowed origins.
	CORSOrigins []string
}

// Server exposes a Translator over HTTP.
type Server struct {
	translator *beamflow.Translator
	config     Config
	handler    http.Handler
}

// New returns a new Server.
func New(translator *beamflow.Translator, config Config) *Server {
	s := &Server{
		translator: translator,
		config:     config,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/translate", s.serveTranslate)
	mux.HandleFunc("/ws", s.serveWebSocket)
	s.handler = newCORS(config.CORSOrigins).Handler(mux)
	return s
}

func newCORS(allowedOrigins []string) *corspkg.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return corspkg.New(corspkg.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start listens on the given address and serves until the context is done,
// then shuts the server down gracefully.
func (s *Server) Start(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	log.Info().Msgf("HTTP server listening on %v", lis.Addr())

	hs := &http.Server{
		Handler:     s,
		ReadTimeout: 10 * time.Second,
	}

	serveErrChan := make(chan error, 1)
	go func() {
		serveErrChan <- hs.Serve(lis)
	}()

	select {
	case err = <-serveErrChan:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// TranslateRequest is the body of a translation request. Fields left out
// keep the server defaults.
type TranslateRequest struct {
	Text    string          `json:"text"`
	Greedy  bool            `json:"greedy"`
	Options decoder.Options `json:"options"`
}

// TranslateResponse is the body of a successful translation response.
type TranslateResponse struct {
	Translations []beamflow.Translation `json:"translations"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) serveTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	req := TranslateRequest{Options: s.config.Decoding, Greedy: s.config.Greedy}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	log.Debug().Msgf("Translation request: %q (greedy: %t)", req.Text, req.Greedy)

	var translations []beamflow.Translation
	var err error
	if req.Greedy {
		var tr beamflow.Translation
		tr, err = s.translator.TranslateGreedy(r.Context(), req.Text, req.Options)
		translations = []beamflow.Translation{tr}
	} else {
		translations, err = s.translator.Translate(r.Context(), req.Text, req.Options)
	}
	if err != nil {
		log.Warn().Err(err).Msg("translation failed")
		writeJSON(w, statusCode(err), ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, TranslateResponse{Translations: translations})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, decoder.ErrInvalidConfiguration), errors.Is(err, encoder.ErrEmptySource):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
