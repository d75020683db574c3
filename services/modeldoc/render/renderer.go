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
	"fmt"
	"strings"

	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// Render serializes a model snapshot back to definition text.
//
// # Description
//
// When no entity in the snapshot is dirty the output is byte-identical to
// the text the snapshot was parsed from. Dirty entities have their changed
// property lines rewritten in place and their post-parse properties
// inserted at the end of their block; all other lines pass through
// verbatim, including the presence or absence of a final newline.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - model: The snapshot to serialize.
//
// # Outputs
//
//   - string: The rendered definition text.
//   - error: ErrInvalidInput or a context error.
func Render(ctx context.Context, model *tmdl.Model) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if model == nil {
		return "", fmt.Errorf("%w: nil model", ErrInvalidInput)
	}

	replacements := make(map[int]string)
	insertions := make(map[int][]string)
	for _, e := range model.All() {
		if !e.Dirty {
			continue
		}
		planEntity(model, e, replacements, insertions)
	}

	out := make([]string, 0, len(model.Lines))
	for i, line := range model.Lines {
		if r, ok := replacements[i]; ok {
			line = r
		}
		out = append(out, line)
		out = append(out, insertions[i]...)
	}
	text := strings.Join(out, "\n")
	if model.TrailingNewline {
		text += "\n"
	}
	return text, nil
}

// planEntity records the line edits one dirty entity needs. Properties with
// a source offset are rewritten only when their value no longer matches the
// source line; properties added after parse carry no offset and are queued
// for insertion after the last line of the entity's block.
func planEntity(model *tmdl.Model, e *tmdl.Entity, replacements map[int]string, insertions map[int][]string) {
	insertAt := insertionLine(e)
	prefix := insertIndent(model, e)

	for _, p := range e.Properties {
		if p.Offset < 0 {
			insertions[insertAt] = append(insertions[insertAt], prefix+formatProperty(p))
			continue
		}
		idx := e.Raw.Start + p.Offset
		if idx < 0 || idx >= len(model.Lines) {
			continue
		}
		line := model.Lines[idx]
		if sourceValue(line, p.Annotation) == p.Value {
			continue
		}
		replacements[idx] = leadingWhitespace(line) + formatProperty(p)
	}
}

// insertionLine picks the line after which new properties are inserted.
// Leaf entities append at the end of their block. Tables append after their
// last direct property line (or the header) so insertions never land inside
// a child block.
func insertionLine(e *tmdl.Entity) int {
	if len(e.Children) == 0 {
		if e.Raw.End > e.Raw.Start {
			return e.Raw.End - 1
		}
		return e.Raw.Start
	}
	at := e.Raw.Start
	for _, p := range e.Properties {
		if p.Offset >= 0 && e.Raw.Start+p.Offset > at {
			at = e.Raw.Start + p.Offset
		}
	}
	return at
}

// insertIndent derives the indentation for inserted property lines from an
// existing property line, falling back to the header's indent plus one tab.
func insertIndent(model *tmdl.Model, e *tmdl.Entity) string {
	for _, p := range e.Properties {
		if p.Offset >= 0 {
			idx := e.Raw.Start + p.Offset
			if idx >= 0 && idx < len(model.Lines) {
				return leadingWhitespace(model.Lines[idx])
			}
		}
	}
	if e.Raw.Start >= 0 && e.Raw.Start < len(model.Lines) {
		return leadingWhitespace(model.Lines[e.Raw.Start]) + "\t"
	}
	return "\t"
}

// formatProperty renders one property in its source form.
func formatProperty(p tmdl.Property) string {
	if p.Annotation {
		return "annotation " + p.Key + " = " + p.Value
	}
	return p.Key + ": " + p.Value
}

// sourceValue extracts the value currently on a property line so unchanged
// lines can be left untouched, odd spacing and all.
func sourceValue(line string, annotation bool) string {
	content := strings.TrimSpace(line)
	if annotation {
		body := strings.TrimSpace(strings.TrimPrefix(content, "annotation"))
		eq := strings.Index(body, "=")
		if eq < 0 {
			return ""
		}
		return strings.Trim(strings.TrimSpace(body[eq+1:]), `"`)
	}
	colon := strings.Index(content, ":")
	if colon < 0 {
		return ""
	}
	return strings.TrimSpace(content[colon+1:])
}

// leadingWhitespace returns the indentation prefix of a line.
func leadingWhitespace(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != '\t' && line[i] != ' ' {
			return line[:i]
		}
	}
	return line
}
