// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

// DecodingParameters overrides the default decoding options of the server.
// Zero values keep the server defaults.
type DecodingParameters struct {
	BeamWidth     int32   `json:"beam_width,omitempty"`
	MaxHypotheses int32   `json:"max_hypotheses,omitempty"`
	MaxLen        int32   `json:"max_len,omitempty"`
	Decay         float64 `json:"decay,omitempty"`
	Greedy        bool    `json:"greedy,omitempty"`
}

func (x *DecodingParameters) GetBeamWidth() int32 {
	if x != nil {
		return x.BeamWidth
	}
	return 0
}

func (x *DecodingParameters) GetMaxHypotheses() int32 {
	if x != nil {
		return x.MaxHypotheses
	}
	return 0
}

func (x *DecodingParameters) GetMaxLen() int32 {
	if x != nil {
		return x.MaxLen
	}
	return 0
}

func (x *DecodingParameters) GetDecay() float64 {
	if x != nil {
		return x.Decay
	}
	return 0
}

func (x *DecodingParameters) GetGreedy() bool {
	if x != nil {
		return x.Greedy
	}
	return false
}

type TranslateRequest struct {
	Text               string              `json:"text"`
	DecodingParameters *DecodingParameters `json:"decoding_parameters,omitempty"`
}

func (x *TranslateRequest) GetText() string {
	if x != nil {
		return x.Text
	}
	return ""
}

func (x *TranslateRequest) GetDecodingParameters() *DecodingParameters {
	if x != nil {
		return x.DecodingParameters
	}
	return nil
}

type Translation struct {
	Text       string   `json:"text"`
	Tokens     []string `json:"tokens"`
	Likelihood float64  `json:"likelihood"`
	Terminated bool     `json:"terminated"`
}

type TranslateResponse struct {
	RequestId    string         `json:"request_id"`
	Translations []*Translation `json:"translations"`
}

// StepUpdate reports the state of the beam after an expansion step.
type StepUpdate struct {
	Step       int32        `json:"step"`
	PoolSize   int32        `json:"pool_size"`
	Active     int32        `json:"active"`
	Terminated int32        `json:"terminated"`
	Best       *Translation `json:"best"`
}

// TranslateStreamResponse holds either a step update or the final result.
type TranslateStreamResponse struct {
	Step   *StepUpdate        `json:"step,omitempty"`
	Result *TranslateResponse `json:"result,omitempty"`
}

type ScoreRequest struct {
	Sources  [][]int `json:"sources"`
	Prefixes [][]int `json:"prefixes"`
}

type ScoreResponse struct {
	Distributions [][]float64 `json:"distributions"`
}
