// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Message types exchanged over the websocket.
const (
	// TypeTranslate is sent by the client to translate the message value.
	TypeTranslate = "translate"
	// TypeStop is sent by the client to interrupt the current translation.
	TypeStop = "stop"
	// TypeStep is sent by the server after each beam search step.
	TypeStep = "step"
	// TypeTranslation is sent by the server for each final translation,
	// most likely first.
	TypeTranslation = "translation"
	// TypeEnd is sent by the server when a translation request is over.
	TypeEnd = "end"
	// TypeError is sent by the server when a translation request fails.
	TypeError = "error"
)

// ClientMessage is a message sent by the websocket client.
type ClientMessage struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// ServerMessage is a message sent to the websocket client.
type ServerMessage struct {
	Type       string  `json:"type"`
	Value      string  `json:"value,omitempty"`
	Step       int     `json:"step,omitempty"`
	Likelihood float64 `json:"likelihood,omitempty"`
	Terminated bool    `json:"terminated,omitempty"`
}

var errStopTranslation = errors.New("stop translation")

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Err(err).Msg("websocket.Accept error")
		return
	}
	defer func() {
		_ = c.Close(websocket.StatusInternalError, "")
	}()

	ctx, cancelMainCtx := context.WithCancel(r.Context())
	defer cancelMainCtx()

	readChan := make(chan ClientMessage, 1)
	go func() {
		for {
			var msg ClientMessage
			if err := wsjson.Read(ctx, c, &msg); err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					log.Warn().Err(err).Msg("failed to read JSON message")
				}
				cancelMainCtx()
				return
			}
			select {
			case readChan <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var cliMsg ClientMessage
		select {
		case cliMsg = <-readChan:
		case <-ctx.Done():
			return
		}
		if cliMsg.Type != TypeTranslate {
			log.Warn().Msgf("unexpected message type: %+v", cliMsg)
			continue
		}
		if err := s.streamTranslation(ctx, c, cliMsg.Value, readChan); err != nil {
			log.Warn().Err(err).Msg("failed to write message")
			return
		}
	}
}

// streamTranslation translates the text, sending the best hypothesis of each
// step followed by the final translations. A stop message received meanwhile
// interrupts the search. The returned error is only about the connection.
func (s *Server) streamTranslation(ctx context.Context, c *websocket.Conn, text string, readChan <-chan ClientMessage) error {
	log.Trace().Msgf("websocket translation request: %q", text)

	genCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	listenCtx, stopListening := context.WithCancel(genCtx)
	defer stopListening()
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		for {
			select {
			case msg := <-readChan:
				if msg.Type == TypeStop {
					cancel(errStopTranslation)
					return
				}
				log.Warn().Msgf("ignoring message type during translation: %+v", msg)
			case <-listenCtx.Done():
				return
			}
		}
	}()

	type outcome struct {
		translations []beamflow.Translation
		err          error
	}
	done := make(chan outcome, 1)
	buf := make(decoder.ChannelBuffer)
	go func() {
		translations, err := s.translator.TranslateStream(genCtx, text, s.config.Decoding, buf)
		done <- outcome{translations: translations, err: err}
	}()

	var writeErr error
	for step := range buf {
		if writeErr != nil {
			continue
		}
		best := s.translator.Render(step.Best)
		writeErr = wsjson.Write(ctx, c, ServerMessage{
			Type:       TypeStep,
			Value:      best.Text,
			Step:       step.Step,
			Likelihood: best.Likelihood,
			Terminated: best.Terminated,
		})
		if writeErr != nil {
			cancel(writeErr)
		}
	}
	out := <-done
	// the next client messages belong to the main loop
	stopListening()
	<-listening

	if writeErr != nil {
		return writeErr
	}

	if out.err != nil {
		if context.Cause(genCtx) == errStopTranslation {
			return wsjson.Write(ctx, c, ServerMessage{Type: TypeEnd})
		}
		err := fmt.Errorf("translation failed: %w", out.err)
		log.Warn().Err(err).Send()
		return wsjson.Write(ctx, c, ServerMessage{Type: TypeError, Value: err.Error()})
	}

	for _, tr := range out.translations {
		err := wsjson.Write(ctx, c, ServerMessage{
			Type:       TypeTranslation,
			Value:      tr.Text,
			Likelihood: tr.Likelihood,
			Terminated: tr.Terminated,
		})
		if err != nil {
			return err
		}
	}
	return wsjson.Write(ctx, c, ServerMessage{Type: TypeEnd})
}
