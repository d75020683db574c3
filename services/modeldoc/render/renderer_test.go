// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// roundTripModel exercises the formatting the parser carries opaquely:
// comments, blank lines, unknown blocks, odd spacing, quoted names, and a
// multi-line expression.
const roundTripModel = `// payroll model
model Payroll

table Payments
	column EmployeeID
	column Amount
		formatString:   $#,0.00
	measure 'Net Pay' =
			SUM(Payments[Amount])
				- SUM(Payments[Deductions])
		description: Net pay after deductions
		annotation Technical_Notes = Subtraction over two aggregates
	column Deductions

	partition payments-data
		mode: import

table PersonalInfo
	column EmployeeID

relationship r1
	fromColumn: Payments.EmployeeID
	toColumn: PersonalInfo.EmployeeID
`

func parse(t *testing.T, src string) *tmdl.Model {
	t.Helper()
	model, err := tmdl.Parse(context.Background(), src)
	require.NoError(t, err)
	return model
}

func TestRender_RoundTripUnmodified(t *testing.T) {
	model := parse(t, roundTripModel)
	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, roundTripModel, out)
}

func TestRender_RoundTripNoTrailingNewline(t *testing.T) {
	src := strings.TrimSuffix(roundTripModel, "\n")
	model := parse(t, src)
	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestRender_RewritesChangedPropertyLine(t *testing.T) {
	model := parse(t, roundTripModel).Clone()
	e, ok := model.Entity("Payments[Net Pay]")
	require.True(t, ok)
	e.SetProperty("description", "Take-home pay per employee.")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)

	assert.Contains(t, out, "\t\tdescription: Take-home pay per employee.\n")
	assert.NotContains(t, out, "Net pay after deductions")
	// The untouched annotation line and everything outside the block
	// survive byte for byte.
	assert.Contains(t, out, "\t\tannotation Technical_Notes = Subtraction over two aggregates\n")
	assert.Contains(t, out, "formatString:   $#,0.00")
	assert.Contains(t, out, "\tpartition payments-data\n\t\tmode: import\n")
}

func TestRender_DirtyEntityLeavesUnchangedLinesAlone(t *testing.T) {
	src := "table T\n\tcolumn X\n\t\tformatString:    0.00%\n\t\tdescription: old\n"
	model := parse(t, src).Clone()
	e, _ := model.Entity("T[X]")
	e.SetProperty("description", "new")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	// formatString keeps its original run of spaces; only description moved.
	assert.Equal(t, "table T\n\tcolumn X\n\t\tformatString:    0.00%\n\t\tdescription: new\n", out)
}

func TestRender_InsertsNewProperty(t *testing.T) {
	src := "table Payments\n\tcolumn Amount\n\tmeasure Total = SUM(Payments[Amount])\n\ntable Other\n\tcolumn A\n"
	model := parse(t, src).Clone()
	e, _ := model.Entity("Payments[Total]")
	e.SetProperty("description", "Sum of all payment amounts.")
	e.SetAnnotation(tmdl.AnnotationAIGenerated, "true")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)

	want := "table Payments\n" +
		"\tcolumn Amount\n" +
		"\tmeasure Total = SUM(Payments[Amount])\n" +
		"\t\tdescription: Sum of all payment amounts.\n" +
		"\t\tannotation AI_Generated_Docs = true\n" +
		"\ntable Other\n\tcolumn A\n"
	assert.Equal(t, want, out)
}

func TestRender_InsertAfterExpressionContinuation(t *testing.T) {
	src := "table T\n\tcolumn X\n\tmeasure M =\n\t\t\tSUM(T[X])\n"
	model := parse(t, src).Clone()
	e, _ := model.Entity("T[M]")
	e.SetProperty("description", "Sums X.")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, "table T\n\tcolumn X\n\tmeasure M =\n\t\t\tSUM(T[X])\n\t\tdescription: Sums X.\n", out)

	// The rendered text reparses with the inserted field in place.
	reparsed := parse(t, out)
	m, ok := reparsed.Entity("T[M]")
	require.True(t, ok)
	assert.Equal(t, "Sums X.", m.Description)
}

func TestRender_InsertUsesExistingPropertyIndent(t *testing.T) {
	// Four-space indentation instead of tabs.
	src := "table T\n    column X\n        formatString: 0\n"
	model := parse(t, src).Clone()
	e, _ := model.Entity("T[X]")
	e.SetProperty("description", "d")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, "table T\n    column X\n        formatString: 0\n        description: d\n", out)
}

func TestRender_TableInsertStaysAboveChildren(t *testing.T) {
	src := "table T\n\tcolumn X\n\tcolumn Y\n"
	model := parse(t, src).Clone()
	e, _ := model.Entity("T")
	e.SetProperty("description", "fact table")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, "table T\n\tdescription: fact table\n\tcolumn X\n\tcolumn Y\n", out)
}

func TestRender_RenderAfterMergeReparsesToSameModel(t *testing.T) {
	model := parse(t, roundTripModel).Clone()
	e, _ := model.Entity("Payments[Net Pay]")
	e.SetAnnotation(tmdl.AnnotationTechnicalNotes, "Rewritten notes.")
	e.Dirty = true

	out, err := Render(context.Background(), model)
	require.NoError(t, err)
	reparsed := parse(t, out)
	m, ok := reparsed.Entity("Payments[Net Pay]")
	require.True(t, ok)
	assert.Equal(t, "Rewritten notes.", m.TechnicalNotes)
	assert.Equal(t, "Net pay after deductions", m.Description)

	// A second render of the reparsed snapshot is stable.
	again, err := Render(context.Background(), reparsed)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRender_InvalidInput(t *testing.T) {
	model := parse(t, roundTripModel)

	_, err := Render(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Render(nil, model) //nolint:staticcheck // exercising the nil guard
	assert.ErrorIs(t, err, ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Render(ctx, model)
	assert.ErrorIs(t, err, context.Canceled)
}
