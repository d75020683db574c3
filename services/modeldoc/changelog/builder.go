// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changelog renders a change set and impact report into the backup
// document format and a suggested commit message.
//
// Prose for the summary sections comes from the text-generation
// collaborator when one is configured and responsive; otherwise a
// deterministic rendering of the change set stands in. The commit message
// is always deterministic.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
)

// ErrInvalidInput indicates a nil context or nil change set.
var ErrInvalidInput = errors.New("invalid input")

// maxNamedEntities caps how many entity names the commit message lists
// before eliding the rest.
const maxNamedEntities = 3

// Input carries everything one document build needs.
type Input struct {
	// ChangeSet is the typed change set the document describes. Required.
	ChangeSet *diff.ChangeSet

	// Impact is the impact report for the change set, or nil.
	Impact *impact.Report

	// UnifiedDiff is the externally supplied textual diff of the two model
	// files, or empty when the caller has none.
	UnifiedDiff string

	// Timestamp is the backup timestamp. Zero means time.Now().
	Timestamp time.Time
}

// Document is one rendered changelog.
type Document struct {
	// Markdown is the full backup document.
	Markdown string

	// CommitMessage is the deterministic one-line commit suggestion.
	CommitMessage string
}

// Builder renders changelog documents. The zero value is not usable; use
// NewBuilder. A nil client is valid and selects the deterministic fallback
// prose unconditionally.
type Builder struct {
	client llm.Client
	logger *slog.Logger
}

// NewBuilder returns a Builder. client may be nil.
func NewBuilder(client llm.Client) *Builder {
	return &Builder{client: client, logger: slog.Default()}
}

// Build renders one changelog document.
//
// # Description
//
// The document has a timestamp header, a changes-summary section, an
// impact-assessment section, and a technical-details section holding the
// supplied unified diff in a fenced block with line statistics. A failing
// or absent collaborator never fails the build; the affected section falls
// back to its deterministic rendering.
//
// # Outputs
//
//   - *Document: The rendered document and commit message.
//   - error: ErrInvalidInput or a context error.
func (b *Builder) Build(ctx context.Context, in Input) (*Document, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.ChangeSet == nil {
		return nil, fmt.Errorf("%w: nil change set", ErrInvalidInput)
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	summary := b.prose(ctx, summaryPrompt(in.ChangeSet), func() string {
		return fallbackSummary(in.ChangeSet)
	})
	assessment := b.prose(ctx, impactPrompt(in.Impact), func() string {
		return fallbackImpact(in.Impact)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Model Backup - %s\n\n", ts.Format(time.RFC3339))
	sb.WriteString("## Changes Summary\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\n## Impact Assessment\n\n")
	sb.WriteString(assessment)
	sb.WriteString("\n\n## Technical Details\n\n")
	writeTechnicalDetails(&sb, in.UnifiedDiff)

	return &Document{
		Markdown:      sb.String(),
		CommitMessage: CommitMessage(in.ChangeSet),
	}, nil
}

// prose asks the collaborator for a section body, falling back to the
// deterministic rendering on any failure or when no client is configured.
func (b *Builder) prose(ctx context.Context, prompt string, fallback func() string) string {
	if b.client == nil || prompt == "" {
		return fallback()
	}
	text, err := b.client.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil || strings.TrimSpace(text) == "" {
		b.logger.DebugContext(ctx, "changelog prose fallback", "error", err)
		return fallback()
	}
	return strings.TrimSpace(text)
}

// CommitMessage derives the one-line commit suggestion from a change set,
// e.g. "Model update: 1 added, 2 modified (NetPayV2, Net Pay, Amount)".
func CommitMessage(cs *diff.ChangeSet) string {
	if cs == nil || cs.IsEmpty() {
		return "Model update: no changes"
	}
	added, removed, modified := cs.Counts()

	parts := make([]string, 0, 3)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", added))
	}
	if modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", modified))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}

	names := changedNames(cs)
	if len(names) > maxNamedEntities {
		names = append(names[:maxNamedEntities], "...")
	}
	return fmt.Sprintf("Model update: %s (%s)", strings.Join(parts, ", "), strings.Join(names, ", "))
}

// changedNames returns the unqualified names of changed entities, sorted,
// Added first so new entities lead the commit message.
func changedNames(cs *diff.ChangeSet) []string {
	byType := map[diff.ChangeType][]string{}
	for _, rec := range cs.Records {
		byType[rec.Type] = append(byType[rec.Type], shortName(rec.EntityID))
	}
	var names []string
	for _, t := range []diff.ChangeType{diff.Added, diff.Modified, diff.Removed} {
		group := byType[t]
		sort.Strings(group)
		names = append(names, group...)
	}
	return names
}

// shortName strips the table qualifier from an entity identifier.
func shortName(id string) string {
	if open := strings.IndexByte(id, '['); open >= 0 && strings.HasSuffix(id, "]") {
		return id[open+1 : len(id)-1]
	}
	return strings.TrimPrefix(id, "relationship/")
}

// fallbackSummary renders the deterministic changes-summary body.
func fallbackSummary(cs *diff.ChangeSet) string {
	if cs.IsEmpty() {
		return "No entity-level changes detected between the two snapshots."
	}
	var sb strings.Builder
	for i, rec := range cs.Records {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch rec.Type {
		case diff.Added:
			fmt.Fprintf(&sb, "- Added %s `%s`", rec.KindName, rec.EntityID)
		case diff.Removed:
			fmt.Fprintf(&sb, "- Removed %s `%s`", rec.KindName, rec.EntityID)
		case diff.Modified:
			fields := make([]string, 0, len(rec.Fields))
			for _, fd := range rec.Fields {
				fields = append(fields, fd.Field)
			}
			fmt.Fprintf(&sb, "- Modified %s `%s` (%s)", rec.KindName, rec.EntityID, strings.Join(fields, ", "))
		}
	}
	return sb.String()
}

// fallbackImpact renders the deterministic impact-assessment body.
func fallbackImpact(rep *impact.Report) string {
	if rep == nil || len(rep.Entries) == 0 {
		return "No downstream impact was computed for this change."
	}
	ids := make([]string, 0, len(rep.Entries))
	for id := range rep.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte('\n')
		}
		entry := rep.Entries[id]
		fmt.Fprintf(&sb, "- `%s`: %d affected entities", id, len(entry.Affected))
		if len(entry.Reports) > 0 {
			fmt.Fprintf(&sb, "; reports: %s", strings.Join(entry.Reports, ", "))
		}
		if entry.Truncated {
			sb.WriteString(" (traversal depth-capped)")
		}
	}
	return sb.String()
}

// writeTechnicalDetails emits the diff statistics and fenced diff block.
func writeTechnicalDetails(sb *strings.Builder, unified string) {
	if strings.TrimSpace(unified) == "" {
		sb.WriteString("No textual diff was supplied for this change.\n")
		return
	}
	if stats, err := parseDiffStats(unified); err == nil {
		fmt.Fprintf(sb, "%d files changed, %d insertions(+), %d deletions(-)\n\n",
			stats.Files, stats.Added, stats.Deleted)
	}
	sb.WriteString("```diff\n")
	sb.WriteString(strings.TrimRight(unified, "\n"))
	sb.WriteString("\n```\n")
}

// summaryPrompt builds the collaborator prompt for the summary section.
func summaryPrompt(cs *diff.ChangeSet) string {
	if cs.IsEmpty() {
		return ""
	}
	return "Write a short prose summary of the following tabular-model changes. " +
		"Mention only the entities listed.\n\n" + fallbackSummary(cs)
}

// impactPrompt builds the collaborator prompt for the impact section.
func impactPrompt(rep *impact.Report) string {
	if rep == nil || len(rep.Entries) == 0 {
		return ""
	}
	return "Write a short prose assessment of the downstream impact described " +
		"below. Mention only the entities and reports listed.\n\n" + fallbackImpact(rep)
}
