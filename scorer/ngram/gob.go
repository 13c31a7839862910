// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ngram

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// DefaultFilename is the name of the model file within a model directory.
const DefaultFilename = "model.gob"

// Dump saves the Model to a file.
// See gobEncode for further details.
func Dump(obj *Model, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to open model dump file %q for writing: %w", filename, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("failed to close model dump file %q: %w", filename, e)
		}
	}()
	if err = gobEncode(obj, f); err != nil {
		return fmt.Errorf("failed to encode model dump: %w", err)
	}
	return nil
}

// gobEncode writes the model as a sequence of chunks, flushing after each
// one, so that the largest tables are never buffered together.
func gobEncode(obj *Model, w io.Writer) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)

	for _, chunk := range getChunksForGobEncoding(obj) {
		if err := encoder.Encode(chunk); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func getChunksForGobEncoding(obj *Model) []any {
	return []any{
		obj.Config,
		obj.Special,
		[2]int{obj.SourceSize, obj.TargetSize},
		obj.Unigram,
		obj.Bigram,
		obj.Context,
		obj.Translation,
	}
}

// Load reads a Model from a file written by Dump.
func Load(filename string) (_ *Model, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	m, err := gobDecoding(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model %q: %w", filename, err)
	}
	return m, nil
}

func gobDecoding(r io.Reader) (*Model, error) {
	obj := &Model{}

	br := bufio.NewReader(r)
	decoder := gob.NewDecoder(br)

	var sizes [2]int
	for _, chunk := range []any{
		&obj.Config,
		&obj.Special,
		&sizes,
		&obj.Unigram,
		&obj.Bigram,
		&obj.Context,
		&obj.Translation,
	} {
		if err := decoder.Decode(chunk); err != nil {
			return nil, err
		}
	}
	obj.SourceSize, obj.TargetSize = sizes[0], sizes[1]
	if len(obj.Unigram) != obj.TargetSize {
		return nil, fmt.Errorf("unigram size %d does not match target size %d", len(obj.Unigram), obj.TargetSize)
	}
	if obj.Bigram == nil {
		obj.Bigram = make(map[int]map[int]float64)
	}
	if obj.Context == nil {
		obj.Context = make(map[int]float64)
	}
	if obj.Translation == nil {
		obj.Translation = make(map[int]map[int]float64)
	}
	return obj, nil
}
