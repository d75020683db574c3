// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
)

const oldText = `table Payments
	column EmployeeID
	column Amount
	column Deductions
	measure NetPay = SUM(Payments[Amount]) - SUM(Payments[Deductions])

table PersonalInfo
	column EmployeeID

relationship r1
	fromColumn: Payments.EmployeeID
	toColumn: PersonalInfo.EmployeeID
`

const newText = `table Payments
	column EmployeeID
	column Amount
	column Deductions
	measure NetPay = SUM(Payments[Amount]) - SUM(Payments[Deductions])
	measure NetPayV2 = CALCULATE([NetPay], USERELATIONSHIP(Payments[EmployeeID], PersonalInfo[EmployeeID]))

table PersonalInfo
	column EmployeeID

relationship r1
	fromColumn: Payments.EmployeeID
	toColumn: PersonalInfo.EmployeeID
`

var reportIndex = impact.MapConsumerIndex{
	"Payments":     {"rpt-payroll"},
	"PersonalInfo": {"rpt-people"},
}

// scriptedClient answers annotation prompts with JSON and prose prompts
// with a fixed sentence, mirroring the two call sites one client serves.
type scriptedClient struct{}

func (scriptedClient) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	if strings.Contains(prompt, "JSON object") {
		return `{"description": "Computed measure over payments."}`, nil
	}
	return "One new measure was added to the payments table.", nil
}

func TestRun_WithoutCollaborator(t *testing.T) {
	engine := New(WithConsumerIndex(reportIndex))

	art, err := engine.Run(context.Background(), Input{OldText: oldText, NewText: newText})
	require.NoError(t, err)

	require.Len(t, art.ChangeSet.Records, 1)
	rec := art.ChangeSet.Records[0]
	assert.Equal(t, diff.Added, rec.Type)
	assert.Equal(t, "Payments[NetPayV2]", rec.EntityID)

	entry, ok := art.Impact.Entries["Payments[NetPayV2]"]
	require.True(t, ok)
	assert.Contains(t, entry.Reports, "rpt-payroll")
	assert.Contains(t, entry.Reports, "rpt-people")

	// Without annotation the new snapshot renders byte-identical.
	assert.Equal(t, newText, art.Rendered)
	assert.Nil(t, art.Annotation)

	require.NotNil(t, art.Changelog)
	assert.Equal(t, "Model update: 1 added (NetPayV2)", art.Changelog.CommitMessage)
	assert.Contains(t, art.Changelog.Markdown, "- Added measure `Payments[NetPayV2]`")
}

func TestRun_WithCollaboratorAnnotatesAndRenders(t *testing.T) {
	engine := New(
		WithConsumerIndex(reportIndex),
		WithCollaborator(scriptedClient{}),
	)

	art, err := engine.Run(context.Background(), Input{OldText: oldText, NewText: newText})
	require.NoError(t, err)

	require.NotNil(t, art.Annotation)
	assert.Equal(t, []string{"Payments[NetPay]", "Payments[NetPayV2]"}, art.Annotation.Annotated)
	assert.Empty(t, art.Annotation.Failures)

	// Merged annotations appear in the rendered text; the input snapshot
	// stays untouched.
	assert.Contains(t, art.Rendered, "description: Computed measure over payments.")
	assert.Contains(t, art.Rendered, "annotation AI_Generated_Docs = true")
	assert.NotContains(t, newText, "AI_Generated_Docs")

	assert.Contains(t, art.Changelog.Markdown, "One new measure was added to the payments table.")
}

func TestRun_IdenticalSnapshots(t *testing.T) {
	engine := New()
	art, err := engine.Run(context.Background(), Input{OldText: oldText, NewText: oldText})
	require.NoError(t, err)
	assert.True(t, art.ChangeSet.IsEmpty())
	assert.Equal(t, oldText, art.Rendered)
	assert.Equal(t, "Model update: no changes", art.Changelog.CommitMessage)
}

func TestRun_UnifiedDiffFlowsThrough(t *testing.T) {
	unified := "--- a/m.tmdl\n+++ b/m.tmdl\n@@ -1,1 +1,2 @@\n table Payments\n+\tcolumn Extra\n"
	engine := New()
	art, err := engine.Run(context.Background(), Input{OldText: oldText, NewText: newText, UnifiedDiff: unified})
	require.NoError(t, err)
	assert.Contains(t, art.Changelog.Markdown, "```diff\n--- a/m.tmdl")
}

func TestRun_ParseErrorNamesSnapshot(t *testing.T) {
	engine := New()
	_, err := engine.Run(context.Background(), Input{OldText: oldText, NewText: "table T\n\tmeasure Broken\n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "new snapshot:")
}

func TestRun_InvalidInput(t *testing.T) {
	engine := New()
	_, err := engine.Run(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = engine.Run(nil, Input{OldText: oldText, NewText: newText}) //nolint:staticcheck // exercising the nil guard
	assert.ErrorIs(t, err, ErrInvalidInput)
}
