// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

const analyzerModel = `table Payments
	column EmployeeID
	column Amount
	column Deductions
	measure 'Net Pay' = SUM(Payments[Amount]) - SUM(Payments[Deductions])
	measure 'Pay Count' = COUNTROWS(Payments)

table PersonalInfo
	column EmployeeID
	column Region

relationship r1
	fromColumn: Payments.EmployeeID
	toColumn: PersonalInfo.EmployeeID
`

func parseModel(t *testing.T) *tmdl.Model {
	t.Helper()
	model, err := tmdl.Parse(context.Background(), analyzerModel)
	require.NoError(t, err)
	return model
}

func analyze(t *testing.T, model *tmdl.Model, entityID, expr string) *Result {
	t.Helper()
	e, ok := model.Entity(entityID)
	require.True(t, ok)
	res, err := Analyze(context.Background(), expr, e, model)
	require.NoError(t, err)
	return res
}

func refIDs(res *Result, kind RefKind) []string {
	var out []string
	for _, r := range res.References {
		if r.Kind == kind {
			out = append(out, r.TargetID)
		}
	}
	return out
}

func TestAnalyze_ColumnReads(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]",
		"SUM(Payments[Amount]) - SUM(Payments[Deductions])")

	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{"Payments[Amount]", "Payments[Deductions]"}, refIDs(res, ColumnRead))
}

func TestAnalyze_BareTableReference(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Pay Count]", "COUNTROWS(Payments)")

	assert.Equal(t, []string{"Payments"}, refIDs(res, ColumnRead))
	assert.Empty(t, res.Warnings)
}

func TestAnalyze_MeasureCall(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Pay Count]", "[Net Pay] * 2")

	assert.Equal(t, []string{"Payments[Net Pay]"}, refIDs(res, MeasureCall))
}

func TestAnalyze_FilterPropagation(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]",
		"CALCULATE(SUM(Payments[Amount]), USERELATIONSHIP(Payments[EmployeeID], PersonalInfo[EmployeeID]))")

	want := []string{
		"Payments[Amount]",
		"Payments[EmployeeID]",
		"PersonalInfo[EmployeeID]",
	}
	assert.Equal(t, want, refIDs(res, FilterPropagation))
	assert.Empty(t, refIDs(res, ColumnRead))
}

func TestAnalyze_FilterContextCloses(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]",
		"ALL(PersonalInfo[Region]) + SUM(Payments[Amount])")

	assert.Equal(t, []string{"PersonalInfo[Region]"}, refIDs(res, FilterPropagation))
	assert.Equal(t, []string{"Payments[Amount]"}, refIDs(res, ColumnRead))
}

func TestAnalyze_UnresolvedReference(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]", "SUM(Payments[Bonus]) + SUM(Ghost[X])")

	assert.Empty(t, res.References)
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Equal(t, UnresolvedReference, w.Kind)
		assert.Equal(t, "Payments[Net Pay]", w.EntityID)
	}
}

func TestAnalyze_AmbiguousBareReference(t *testing.T) {
	model := parseModel(t)
	// EmployeeID exists in both tables; the enclosing table wins silently.
	res := analyze(t, model, "Payments[Net Pay]", "DISTINCTCOUNT([EmployeeID])")
	assert.Equal(t, []string{"Payments[EmployeeID]"}, refIDs(res, ColumnRead))
	assert.Empty(t, res.Warnings)

	// From a measure whose table has no such column, resolution is
	// lexicographic and warned.
	src := analyzerModel + "\ntable Ops\n\tcolumn Misc\n\tmeasure Probe = [EmployeeID]\n"
	m2, err := tmdl.Parse(context.Background(), src)
	require.NoError(t, err)
	probe, ok := m2.Entity("Ops[Probe]")
	require.True(t, ok)
	res2, err := Analyze(context.Background(), "[EmployeeID]", probe, m2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Payments[EmployeeID]"}, refIDs(res2, ColumnRead))
	require.Len(t, res2.Warnings, 1)
	assert.Equal(t, AmbiguousReference, res2.Warnings[0].Kind)
}

func TestAnalyze_DeduplicatesPerKind(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]",
		"SUM(Payments[Amount]) + AVERAGE(Payments[Amount]) + CALCULATE(SUM(Payments[Amount]))")

	assert.Equal(t, []string{"Payments[Amount]"}, refIDs(res, ColumnRead))
	assert.Equal(t, []string{"Payments[Amount]"}, refIDs(res, FilterPropagation))
}

func TestAnalyze_IgnoresStringsAndComments(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]",
		"IF(TRUE(), \"Payments[Amount]\", 0) -- Payments[Deductions]\n+ SUM(Payments[Amount]) /* [Net Pay] */")

	assert.Equal(t, []string{"Payments[Amount]"}, refIDs(res, ColumnRead))
	assert.Empty(t, refIDs(res, MeasureCall))
}

func TestAnalyze_MalformedExpressionDoesNotFail(t *testing.T) {
	model := parseModel(t)
	res := analyze(t, model, "Payments[Net Pay]", "SUM(Payments[Amount") // unterminated bracket
	assert.Empty(t, res.References)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	model := parseModel(t)
	e, _ := model.Entity("Payments[Net Pay]")

	_, err := Analyze(nil, "1", e, model) //nolint:staticcheck // exercising the nil guard
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Analyze(context.Background(), "1", nil, model)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
