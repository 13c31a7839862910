// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/decoder"
	"github.com/nlpodyssey/beamflow/tokenizer"
	"github.com/nlpodyssey/beamflow/vocabulary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// toyScorer predicts "bonjour" (0.8) or "." (0.2), then ".", then the end marker.
var toyScorer = decoder.ScorerFunc(func(_ context.Context, _, prefixes [][]int) ([][]float64, error) {
	out := make([][]float64, len(prefixes))
	for i, prefix := range prefixes {
		d := make([]float64, 6)
		switch len(prefix) {
		case 1:
			d[4], d[5] = 0.8, 0.2
		case 2:
			d[5] = 1
		default:
			d[3] = 1
		}
		out[i] = d
	}
	return out, nil
})

var testOptions = decoder.Options{BeamWidth: 2, MaxHypotheses: 2, MaxLen: 10, Decay: decoder.DefaultDecay}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srcVocab, err := vocabulary.New([]string{"<unk>", "<pad>", "<bos>", "<eos>", "hello", "."})
	require.NoError(t, err)
	tgtVocab, err := vocabulary.New([]string{"<unk>", "<pad>", "<bos>", "<eos>", "bonjour", "."})
	require.NoError(t, err)
	srcTokenizer, err := tokenizer.NewWordTokenizer(tokenizer.English)
	require.NoError(t, err)
	tgtTokenizer, err := tokenizer.NewWordTokenizer(tokenizer.French)
	require.NoError(t, err)

	tr, err := beamflow.New(beamflow.Components{
		SourceVocabulary: srcVocab,
		TargetVocabulary: tgtVocab,
		SourceTokenizer:  srcTokenizer,
		TargetTokenizer:  tgtTokenizer,
		Scorer:           toyScorer,
		Options:          testOptions,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(New(tr, Config{Decoding: testOptions}))
	t.Cleanup(srv.Close)
	return srv
}

func postTranslate(t *testing.T, srv *httptest.Server, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/translate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestTranslate(t *testing.T) {
	srv := newTestServer(t)

	t.Run("beam search", func(t *testing.T) {
		resp, body := postTranslate(t, srv, `{"text": "hello."}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var res TranslateResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res.Translations, 2)
		assert.Equal(t, "bonjour.", res.Translations[0].Text)
		assert.Equal(t, []string{"bonjour", "."}, res.Translations[0].Tokens)
		assert.InDelta(t, 0.8, res.Translations[0].Likelihood, 1e-12)
		assert.True(t, res.Translations[0].Terminated)
	})

	t.Run("options override", func(t *testing.T) {
		resp, body := postTranslate(t, srv, `{"text": "hello.", "options": {"max_hypotheses": 1}}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var res TranslateResponse
		require.NoError(t, json.Unmarshal(body, &res))
		assert.Len(t, res.Translations, 1)
	})

	t.Run("greedy", func(t *testing.T) {
		resp, body := postTranslate(t, srv, `{"text": "hello.", "greedy": true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var res TranslateResponse
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res.Translations, 1)
		assert.Equal(t, "bonjour.", res.Translations[0].Text)
	})
}

func TestTranslateErrors(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{"text": `, http.StatusBadRequest},
		{"empty text", `{"text": "  "}`, http.StatusBadRequest},
		{"invalid options", `{"text": "hello", "options": {"decay": 2}}`, http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postTranslate(t, srv, tc.body)
			assert.Equal(t, tc.code, resp.StatusCode)

			var res ErrorResponse
			require.NoError(t, json.Unmarshal(body, &res))
			assert.NotEmpty(t, res.Error)
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/translate")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/translate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func dialWebSocket(t *testing.T, srv *httptest.Server) (context.Context, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close(websocket.StatusNormalClosure, "")
	})
	return ctx, c
}

func readUntilEnd(ctx context.Context, t *testing.T, c *websocket.Conn) []ServerMessage {
	t.Helper()
	var messages []ServerMessage
	for {
		var msg ServerMessage
		require.NoError(t, wsjson.Read(ctx, c, &msg))
		messages = append(messages, msg)
		if msg.Type == TypeEnd || msg.Type == TypeError {
			return messages
		}
	}
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t)
	ctx, c := dialWebSocket(t, srv)

	require.NoError(t, wsjson.Write(ctx, c, ClientMessage{Type: TypeTranslate, Value: "hello."}))
	messages := readUntilEnd(ctx, t, c)

	expected := []ServerMessage{
		{Type: TypeStep, Step: 1, Value: "bonjour", Likelihood: 0.8},
		{Type: TypeStep, Step: 2, Value: "bonjour.", Likelihood: 0.8},
		{Type: TypeStep, Step: 3, Value: "bonjour.", Likelihood: 0.8, Terminated: true},
		{Type: TypeTranslation, Value: "bonjour.", Likelihood: 0.8, Terminated: true},
		{Type: TypeTranslation, Value: "..", Likelihood: 0.2, Terminated: true},
		{Type: TypeEnd},
	}
	require.Len(t, messages, len(expected))
	for i, msg := range messages {
		assert.Equal(t, expected[i].Type, msg.Type, "message %d", i)
		assert.Equal(t, expected[i].Step, msg.Step, "message %d", i)
		assert.Equal(t, expected[i].Terminated, msg.Terminated, "message %d", i)
		assert.InDelta(t, expected[i].Likelihood, msg.Likelihood, 1e-12, "message %d", i)
	}
	assert.Equal(t, "bonjour.", messages[3].Value)

	// the connection serves further requests
	require.NoError(t, wsjson.Write(ctx, c, ClientMessage{Type: TypeTranslate, Value: "  "}))
	messages = readUntilEnd(ctx, t, c)
	require.Len(t, messages, 1)
	assert.Equal(t, TypeError, messages[0].Type)
	assert.Contains(t, messages[0].Value, "empty")
}

func TestWebSocketIgnoresUnknownMessages(t *testing.T) {
	srv := newTestServer(t)
	ctx, c := dialWebSocket(t, srv)

	require.NoError(t, wsjson.Write(ctx, c, ClientMessage{Type: "ping"}))
	require.NoError(t, wsjson.Write(ctx, c, ClientMessage{Type: TypeTranslate, Value: "hello."}))
	messages := readUntilEnd(ctx, t, c)
	assert.Equal(t, TypeEnd, messages[len(messages)-1].Type)
}
