// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tmdl

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Annotation keys with engine-level meaning. All other annotations are
// carried opaquely.
const (
	// AnnotationTechnicalNotes stores collaborator-written technical notes.
	AnnotationTechnicalNotes = "Technical_Notes"

	// AnnotationAIGenerated marks an entity whose documentation was written
	// by the text-generation collaborator.
	AnnotationAIGenerated = "AI_Generated_Docs"
)

// Property keys lifted into Entity fields.
const (
	propDescription   = "description"
	propDisplayFolder = "displayFolder"
)

// Parse parses model definition text into an immutable Model snapshot.
//
// # Description
//
// The input is a nested block format: "model", "table", and "relationship"
// blocks at the top level, "column" and "measure" blocks nested one level
// inside tables. Indentation is one tab (or four spaces) per level. Measure
// expressions may continue on lines indented two levels past the measure
// header. Property lines ("key: value") and annotation lines
// ("annotation Key = Value") attach to the innermost open block. Lines the
// parser does not recognize are preserved in the source span and round-trip
// untouched.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - text: The model definition source text.
//
// # Outputs
//
//   - *Model: The parsed snapshot.
//   - error: *ParseError for malformed input, ErrEmptyModel when no
//     declarations were found, ErrInvalidInput or a context error otherwise.
//
// # Example
//
//	model, err := tmdl.Parse(ctx, src)
//	if err != nil {
//	    var perr *tmdl.ParseError
//	    if errors.As(err, &perr) {
//	        log.Printf("bad model at line %d: %s", perr.Line, perr.Reason)
//	    }
//	    return err
//	}
func Parse(ctx context.Context, text string) (*Model, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	p := &parser{
		model: &Model{
			Lines:           splitLines(text),
			TrailingNewline: strings.HasSuffix(text, "\n"),
			SnapshotID:      computeSnapshotID(text),
			byID:            make(map[string]*Entity),
		},
	}
	if err := p.run(ctx); err != nil {
		recordParseError(ctx)
		return nil, err
	}
	if len(p.model.Entities) == 0 {
		recordParseError(ctx)
		return nil, ErrEmptyModel
	}
	recordParse(ctx, time.Since(start), len(p.model.byID))
	return p.model, nil
}

// parser holds the cursor state for one Parse call.
type parser struct {
	model *Model
	pos   int
}

// run drives the top-level block loop and the endpoint check pass.
func (p *parser) run(ctx context.Context) error {
	lines := p.model.Lines
	for p.pos < len(lines) {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := lines[p.pos]
		depth, content := indent(line)
		if content == "" || strings.HasPrefix(content, "//") {
			p.pos++
			continue
		}
		if depth != 0 {
			// Stray indented line outside any block. Preserved via the
			// source lines, not an entity property.
			p.pos++
			continue
		}
		keyword, rest := splitKeyword(content)
		switch keyword {
		case "model":
			p.model.Name = strings.TrimSpace(rest)
			p.pos++
			p.skipBlock(0)
		case "table":
			if err := p.parseTable(rest); err != nil {
				return err
			}
		case "relationship":
			if err := p.parseRelationship(rest); err != nil {
				return err
			}
		default:
			// Unknown top-level block (expression, role, ...). Skip it and
			// its children; the raw lines still round-trip.
			p.pos++
			p.skipBlock(0)
		}
	}
	return p.checkRelationshipEndpoints()
}

// parseTable parses one table block and its nested columns and measures.
func (p *parser) parseTable(rest string) error {
	headerLine := p.pos
	name, err := parseName(rest, headerLine)
	if err != nil {
		return err
	}
	table := &Entity{
		ID:   name,
		Kind: KindTable,
		Name: name,
		Raw:  Span{Start: headerLine},
	}
	if err := p.register(table, headerLine); err != nil {
		return err
	}
	p.pos++

	lines := p.model.Lines
	for p.pos < len(lines) {
		depth, content := indent(lines[p.pos])
		if content == "" {
			p.pos++
			continue
		}
		if depth == 0 {
			break
		}
		if depth > 1 {
			// Orphaned deep line (e.g. inside a skipped sub-block).
			p.pos++
			continue
		}
		keyword, childRest := splitKeyword(content)
		switch keyword {
		case "column":
			child, err := p.parseColumn(table, childRest)
			if err != nil {
				return err
			}
			table.Children = append(table.Children, child)
		case "measure":
			child, err := p.parseMeasure(table, childRest)
			if err != nil {
				return err
			}
			table.Children = append(table.Children, child)
		case "annotation":
			if err := p.parseAnnotationLine(table, content); err != nil {
				return err
			}
			p.pos++
		default:
			if key, value, ok := splitProperty(content); ok {
				p.addProperty(table, key, value, false)
				p.pos++
			} else {
				// Unknown nested block (partition, hierarchy, ...).
				p.pos++
				p.skipBlock(1)
			}
		}
	}
	table.Raw.End = p.trimmedEnd(headerLine)
	p.model.Entities = append(p.model.Entities, table)
	return nil
}

// parseColumn parses one column block at table depth + 1.
func (p *parser) parseColumn(table *Entity, rest string) (*Entity, error) {
	headerLine := p.pos
	name, err := parseName(rest, headerLine)
	if err != nil {
		return nil, err
	}
	col := &Entity{
		ID:    ColumnID(table.Name, name),
		Kind:  KindColumn,
		Name:  name,
		Table: table.Name,
		Raw:   Span{Start: headerLine},
	}
	if err := p.register(col, headerLine); err != nil {
		return nil, err
	}
	p.pos++
	if err := p.parseChildBody(col, 2); err != nil {
		return nil, err
	}
	col.Raw.End = p.trimmedEnd(headerLine)
	return col, nil
}

// parseMeasure parses one measure block, including its expression.
//
// The expression may be inline after "=" or on continuation lines indented
// at least two levels past the measure header.
func (p *parser) parseMeasure(table *Entity, rest string) (*Entity, error) {
	headerLine := p.pos
	name, tail, err := parseNameWithTail(rest, headerLine)
	if err != nil {
		return nil, err
	}
	tail = strings.TrimSpace(tail)
	if !strings.HasPrefix(tail, "=") {
		return nil, parseErrorf(headerLine+1, "measure %q missing '=' expression", name)
	}
	exprParts := []string{}
	if inline := strings.TrimSpace(tail[1:]); inline != "" {
		exprParts = append(exprParts, inline)
	}
	m := &Entity{
		ID:    ColumnID(table.Name, name),
		Kind:  KindMeasure,
		Name:  name,
		Table: table.Name,
		Raw:   Span{Start: headerLine},
	}
	if err := p.register(m, headerLine); err != nil {
		return nil, err
	}
	p.pos++

	// Expression continuation lines sit deeper than the property level.
	lines := p.model.Lines
	for p.pos < len(lines) {
		depth, content := indent(lines[p.pos])
		if content == "" {
			p.pos++
			continue
		}
		if depth < 3 {
			break
		}
		exprParts = append(exprParts, content)
		p.pos++
	}
	m.Expression = strings.Join(exprParts, "\n")
	if strings.TrimSpace(m.Expression) == "" {
		return nil, parseErrorf(headerLine+1, "measure %q has an empty expression", name)
	}
	if err := p.parseChildBody(m, 2); err != nil {
		return nil, err
	}
	m.Raw.End = p.trimmedEnd(headerLine)
	return m, nil
}

// parseChildBody consumes property and annotation lines at the given depth
// for a column or measure.
func (p *parser) parseChildBody(e *Entity, depth int) error {
	lines := p.model.Lines
	for p.pos < len(lines) {
		d, content := indent(lines[p.pos])
		if content == "" {
			p.pos++
			continue
		}
		if d < depth {
			break
		}
		if d > depth {
			p.pos++
			continue
		}
		keyword, _ := splitKeyword(content)
		if keyword == "annotation" {
			if err := p.parseAnnotationLine(e, content); err != nil {
				return err
			}
			p.pos++
			continue
		}
		key, value, ok := splitProperty(content)
		if !ok {
			break
		}
		p.addProperty(e, key, value, false)
		p.pos++
	}
	return nil
}

// parseRelationship parses one relationship block.
func (p *parser) parseRelationship(rest string) error {
	headerLine := p.pos
	name := strings.TrimSpace(rest)
	if name == "" {
		return parseErrorf(headerLine+1, "relationship missing a name")
	}
	rel := &Entity{
		ID:   RelationshipID(name),
		Kind: KindRelationship,
		Name: name,
		Rel:  &RelationshipEndpoints{},
		Raw:  Span{Start: headerLine},
	}
	if err := p.register(rel, headerLine); err != nil {
		return err
	}
	p.pos++

	lines := p.model.Lines
	for p.pos < len(lines) {
		depth, content := indent(lines[p.pos])
		if content == "" {
			p.pos++
			continue
		}
		if depth == 0 {
			break
		}
		key, value, ok := splitProperty(content)
		if !ok {
			p.pos++
			continue
		}
		switch key {
		case "fromColumn":
			t, c, err := parseEndpoint(value, p.pos)
			if err != nil {
				return err
			}
			rel.Rel.FromTable, rel.Rel.FromColumn = t, c
		case "toColumn":
			t, c, err := parseEndpoint(value, p.pos)
			if err != nil {
				return err
			}
			rel.Rel.ToTable, rel.Rel.ToColumn = t, c
		}
		p.addProperty(rel, key, value, false)
		p.pos++
	}
	if rel.Rel.FromTable == "" || rel.Rel.ToTable == "" {
		return parseErrorf(headerLine+1, "relationship %q missing fromColumn or toColumn", name)
	}
	rel.Raw.End = p.trimmedEnd(headerLine)
	p.model.Entities = append(p.model.Entities, rel)
	return nil
}

// parseAnnotationLine handles "annotation Key = Value" lines.
func (p *parser) parseAnnotationLine(e *Entity, content string) error {
	body := strings.TrimSpace(strings.TrimPrefix(content, "annotation"))
	eq := strings.Index(body, "=")
	if eq < 0 {
		return parseErrorf(p.pos+1, "annotation missing '='")
	}
	key := strings.TrimSpace(body[:eq])
	value := strings.Trim(strings.TrimSpace(body[eq+1:]), `"`)
	if key == "" {
		return parseErrorf(p.pos+1, "annotation missing a key")
	}
	p.addProperty(e, key, value, true)
	return nil
}

// addProperty appends a property to the entity's bag and lifts known keys.
func (p *parser) addProperty(e *Entity, key, value string, annotation bool) {
	e.Properties = append(e.Properties, Property{
		Key:        key,
		Value:      value,
		Offset:     p.pos - e.Raw.Start,
		Annotation: annotation,
	})
	switch {
	case !annotation && key == propDescription:
		e.Description = value
	case !annotation && key == propDisplayFolder:
		e.DisplayFolder = value
	case annotation && key == AnnotationTechnicalNotes:
		e.TechnicalNotes = value
	}
}

// register adds an entity to the identifier namespace, rejecting duplicates.
func (p *parser) register(e *Entity, headerLine int) error {
	if _, exists := p.model.byID[e.ID]; exists {
		return parseErrorf(headerLine+1, "duplicate %s identifier %q", e.Kind, e.ID)
	}
	p.model.byID[e.ID] = e
	return nil
}

// skipBlock advances past every line indented deeper than depth.
func (p *parser) skipBlock(depth int) {
	lines := p.model.Lines
	for p.pos < len(lines) {
		d, content := indent(lines[p.pos])
		if content != "" && d <= depth {
			return
		}
		p.pos++
	}
}

// trimmedEnd returns the block end line, excluding trailing blank lines so
// inter-block spacing belongs to no entity's span.
func (p *parser) trimmedEnd(start int) int {
	end := p.pos
	for end > start+1 {
		if _, content := indent(p.model.Lines[end-1]); content != "" {
			break
		}
		end--
	}
	return end
}

// checkRelationshipEndpoints verifies every relationship references declared
// tables and columns. Runs after all blocks are parsed so declaration order
// does not matter.
func (p *parser) checkRelationshipEndpoints() error {
	for _, e := range p.model.Entities {
		if e.Kind != KindRelationship {
			continue
		}
		ends := [...][2]string{
			{e.Rel.FromTable, e.Rel.FromColumn},
			{e.Rel.ToTable, e.Rel.ToColumn},
		}
		for _, end := range ends {
			table, ok := p.model.byID[end[0]]
			if !ok || table.Kind != KindTable {
				return parseErrorf(e.Raw.Start+1, "relationship %q references undeclared table %q", e.Name, end[0])
			}
			colID := ColumnID(end[0], end[1])
			if col, ok := p.model.byID[colID]; !ok || col.Kind != KindColumn {
				return parseErrorf(e.Raw.Start+1, "relationship %q references undeclared column %q", e.Name, colID)
			}
		}
	}
	return nil
}

// splitLines splits source text into lines without their terminators.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// indent computes the indentation depth of a line. One tab or four spaces
// count as a level. Returns the depth and the trimmed content.
func indent(line string) (int, string) {
	depth := 0
	spaces := 0
	i := 0
	for ; i < len(line); i++ {
		switch line[i] {
		case '\t':
			depth++
			spaces = 0
		case ' ':
			spaces++
			if spaces == 4 {
				depth++
				spaces = 0
			}
		default:
			return depth, strings.TrimSpace(line[i:])
		}
	}
	return depth, ""
}

// splitKeyword separates a leading keyword token from the rest of the line.
func splitKeyword(content string) (keyword, rest string) {
	if i := strings.IndexAny(content, " \t"); i >= 0 {
		return content[:i], content[i+1:]
	}
	return content, ""
}

// splitProperty splits a "key: value" line. Keys are single tokens; a colon
// inside an expression does not count because expressions never reach here.
func splitProperty(content string) (key, value string, ok bool) {
	i := strings.Index(content, ":")
	if i <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(content[:i])
	if strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(content[i+1:]), true
}

// parseName extracts a declared entity name, quoted or bare, requiring the
// whole remainder to be consumed.
func parseName(rest string, line int) (string, error) {
	name, tail, err := parseNameWithTail(rest, line)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(tail) != "" {
		return "", parseErrorf(line+1, "unexpected trailing text %q after name", strings.TrimSpace(tail))
	}
	return name, nil
}

// parseNameWithTail extracts a declared entity name and returns the
// remainder of the line. Quoted names use single quotes.
func parseNameWithTail(rest string, line int) (name, tail string, err error) {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", "", parseErrorf(line+1, "missing entity name")
	}
	if rest[0] == '\'' {
		end := strings.IndexByte(rest[1:], '\'')
		if end < 0 {
			return "", "", parseErrorf(line+1, "unterminated quoted identifier")
		}
		return rest[1 : 1+end], rest[end+2:], nil
	}
	if i := strings.IndexAny(rest, " \t="); i >= 0 {
		return rest[:i], rest[i:], nil
	}
	return rest, "", nil
}

// parseEndpoint parses a relationship endpoint "Table.Column",
// "'Quoted Table'.Column", or "Table[Column]".
func parseEndpoint(value string, line int) (table, column string, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", parseErrorf(line+1, "empty relationship endpoint")
	}
	if strings.HasSuffix(value, "]") {
		if open := strings.IndexByte(value, '['); open > 0 {
			return unquote(value[:open]), value[open+1 : len(value)-1], nil
		}
	}
	if value[0] == '\'' {
		end := strings.IndexByte(value[1:], '\'')
		if end < 0 {
			return "", "", parseErrorf(line+1, "unterminated quoted identifier in endpoint %q", value)
		}
		rest := value[end+2:]
		if !strings.HasPrefix(rest, ".") {
			return "", "", parseErrorf(line+1, "malformed relationship endpoint %q", value)
		}
		return value[1 : 1+end], rest[1:], nil
	}
	dot := strings.LastIndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return "", "", parseErrorf(line+1, "malformed relationship endpoint %q", value)
	}
	return value[:dot], value[dot+1:], nil
}

// unquote strips a single level of single quotes.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
