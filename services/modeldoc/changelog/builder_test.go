// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

const sampleUnifiedDiff = `--- a/model.tmdl
+++ b/model.tmdl
@@ -1,3 +1,4 @@
 table Payments
 	column Amount
+	measure NetPayV2 = SUM(Payments[Amount])
 	column Deductions
`

func sampleChangeSet() *diff.ChangeSet {
	return &diff.ChangeSet{
		OldSnapshotID: "aaaa",
		NewSnapshotID: "bbbb",
		Records: []diff.ChangeRecord{
			{Type: diff.Removed, EntityID: "Payments[Deductions]", Kind: tmdl.KindColumn, KindName: "column"},
			{Type: diff.Modified, EntityID: "Payments[Net Pay]", Kind: tmdl.KindMeasure, KindName: "measure",
				Fields: []diff.FieldDiff{{Field: diff.FieldDescription, Old: "old", New: "new"}}},
			{Type: diff.Added, EntityID: "Payments[NetPayV2]", Kind: tmdl.KindMeasure, KindName: "measure"},
		},
	}
}

func sampleImpact() *impact.Report {
	return &impact.Report{
		OldSnapshotID: "aaaa",
		NewSnapshotID: "bbbb",
		Entries: map[string]impact.Entry{
			"Payments[NetPayV2]": {
				Affected: []string{},
				Reports:  []string{"rpt-payroll", "rpt-people"},
			},
			"Payments[Net Pay]": {
				Affected:  []string{"Payments[Net Pay Pct]"},
				Reports:   []string{"rpt-payroll"},
				Truncated: true,
			},
		},
	}
}

type fakeProse struct {
	text string
	err  error
}

func (f *fakeProse) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return f.text, f.err
}

func TestBuild_DeterministicFallback(t *testing.T) {
	b := NewBuilder(nil)
	ts := time.Date(2025, 11, 3, 14, 30, 0, 0, time.UTC)

	doc, err := b.Build(context.Background(), Input{
		ChangeSet:   sampleChangeSet(),
		Impact:      sampleImpact(),
		UnifiedDiff: sampleUnifiedDiff,
		Timestamp:   ts,
	})
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "# Model Backup - 2025-11-03T14:30:00Z\n")
	assert.Contains(t, doc.Markdown, "## Changes Summary\n")
	assert.Contains(t, doc.Markdown, "- Removed column `Payments[Deductions]`")
	assert.Contains(t, doc.Markdown, "- Modified measure `Payments[Net Pay]` (description)")
	assert.Contains(t, doc.Markdown, "- Added measure `Payments[NetPayV2]`")
	assert.Contains(t, doc.Markdown, "## Impact Assessment\n")
	assert.Contains(t, doc.Markdown, "- `Payments[Net Pay]`: 1 affected entities; reports: rpt-payroll (traversal depth-capped)")
	assert.Contains(t, doc.Markdown, "- `Payments[NetPayV2]`: 0 affected entities; reports: rpt-payroll, rpt-people")
	assert.Contains(t, doc.Markdown, "## Technical Details\n")
	assert.Contains(t, doc.Markdown, "1 files changed, 1 insertions(+), 0 deletions(-)")
	assert.Contains(t, doc.Markdown, "```diff\n--- a/model.tmdl")

	assert.Equal(t, "Model update: 1 added, 1 modified, 1 removed (NetPayV2, Net Pay, Deductions)", doc.CommitMessage)

	// The build is deterministic.
	again, err := b.Build(context.Background(), Input{
		ChangeSet:   sampleChangeSet(),
		Impact:      sampleImpact(),
		UnifiedDiff: sampleUnifiedDiff,
		Timestamp:   ts,
	})
	require.NoError(t, err)
	assert.Equal(t, doc.Markdown, again.Markdown)
}

func TestBuild_CollaboratorProseUsedWhenAvailable(t *testing.T) {
	b := NewBuilder(&fakeProse{text: "A new net pay measure was introduced."})
	doc, err := b.Build(context.Background(), Input{ChangeSet: sampleChangeSet()})
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "A new net pay measure was introduced.")
	assert.NotContains(t, doc.Markdown, "- Added measure")
}

func TestBuild_CollaboratorFailureFallsBack(t *testing.T) {
	b := NewBuilder(&fakeProse{err: errors.New("unavailable")})
	doc, err := b.Build(context.Background(), Input{ChangeSet: sampleChangeSet()})
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "- Added measure `Payments[NetPayV2]`")
}

func TestBuild_NoDiffSupplied(t *testing.T) {
	b := NewBuilder(nil)
	doc, err := b.Build(context.Background(), Input{ChangeSet: sampleChangeSet()})
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "No textual diff was supplied for this change.")
	assert.NotContains(t, doc.Markdown, "```diff")
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "Model update: no changes", CommitMessage(nil))
	assert.Equal(t, "Model update: no changes", CommitMessage(&diff.ChangeSet{}))

	cs := &diff.ChangeSet{Records: []diff.ChangeRecord{
		{Type: diff.Added, EntityID: "T[D]"},
		{Type: diff.Added, EntityID: "T[C]"},
		{Type: diff.Added, EntityID: "T[B]"},
		{Type: diff.Added, EntityID: "T[A]"},
	}}
	assert.Equal(t, "Model update: 4 added (A, B, C, ...)", CommitMessage(cs))

	one := &diff.ChangeSet{Records: []diff.ChangeRecord{
		{Type: diff.Modified, EntityID: "relationship/r1"},
	}}
	assert.Equal(t, "Model update: 1 modified (r1)", CommitMessage(one))
}

func TestParseDiffStats(t *testing.T) {
	stats, err := parseDiffStats(sampleUnifiedDiff)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 0, stats.Deleted)
}

func TestBuild_InvalidInput(t *testing.T) {
	b := NewBuilder(nil)
	_, err := b.Build(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = b.Build(nil, Input{ChangeSet: sampleChangeSet()}) //nolint:staticcheck // exercising the nil guard
	assert.ErrorIs(t, err, ErrInvalidInput)
}
