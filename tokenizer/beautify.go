// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tokenizer

import "github.com/dlclark/regexp2"

var (
	spaceBeforePunct = regexp2.MustCompile(`\s+([.,;])`, regexp2.None)
	spaceAroundLink  = regexp2.MustCompile(`\s*([-'’])\s*`, regexp2.None)
)

// Beautify removes the spaces before periods, commas and semicolons, and
// around hyphens and apostrophes. Beautify(Beautify(s)) == Beautify(s).
func Beautify(s string) string {
	s = replaceAll(spaceBeforePunct, s)
	return replaceAll(spaceAroundLink, s)
}

func replaceAll(re *regexp2.Regexp, s string) string {
	out, err := re.Replace(s, "$1", -1, -1)
	if err != nil {
		// only a match timeout can fail, and none is set
		return s
	}
	return out
}
