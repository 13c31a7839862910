// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/nlpodyssey/beamflow"
	"github.com/nlpodyssey/beamflow/evaluation"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

func newTable(headers ...string) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// renderTranslations returns the ranked translations of the source as a table.
func renderTranslations(source string, translations []beamflow.Translation) string {
	t := newTable("#", "Translation", "Likelihood", "Terminated")
	for i, tr := range translations {
		t.Row(strconv.Itoa(i+1), tr.Text, fmt.Sprintf("%.4g", tr.Likelihood), strconv.FormatBool(tr.Terminated))
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(source), t.Render())
}

// renderEvaluation returns the accuracy for each k as a table, followed by
// the loss.
func renderEvaluation(res evaluation.Result) string {
	ks := maps.Keys(res.Accuracy)
	slices.Sort(ks)

	t := newTable("k", "Accuracy")
	for _, k := range ks {
		t.Row(strconv.Itoa(k), fmt.Sprintf("%.2f%%", res.Accuracy[k]*100))
	}
	summary := fmt.Sprintf("Tokens: %d  Loss: %.4f", res.Tokens, res.Loss)
	return lipgloss.JoinVertical(lipgloss.Left, t.Render(), summary)
}
