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

import "strings"

// tokenKind discriminates lexer output.
type tokenKind int

const (
	tokIdent tokenKind = iota // bare identifier or function name
	tokQualifiedRef           // Table[Name] or 'Table Name'[Name]
	tokBareRef                // [Name]
	tokLParen
	tokRParen
	tokOther // operators, commas, literals the analyzer ignores
)

// token is one lexical unit of an expression.
type token struct {
	kind  tokenKind
	text  string // ident text, bracket name, or raw rune
	table string // qualifier for tokQualifiedRef
}

// lex splits expression text into tokens. String literals and comments are
// consumed and dropped. Malformed trailing constructs (unterminated strings
// or brackets) terminate the scan without error; analysis treats whatever was
// produced so far as the expression's reference surface.
func lex(expr string) []token {
	var toks []token
	i := 0
	n := len(expr)
	for i < n {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '"':
			i = skipString(expr, i)
		case strings.HasPrefix(expr[i:], "--") || strings.HasPrefix(expr[i:], "//"):
			i = skipLineComment(expr, i)
		case strings.HasPrefix(expr[i:], "/*"):
			i = skipBlockComment(expr, i)
		case c == '\'':
			name, next, ok := readQuoted(expr, i)
			if !ok {
				return toks
			}
			i = next
			if i < n && expr[i] == '[' {
				bracket, next, ok := readBracket(expr, i)
				if !ok {
					return toks
				}
				toks = append(toks, token{kind: tokQualifiedRef, table: name, text: bracket})
				i = next
			} else {
				toks = append(toks, token{kind: tokIdent, text: name})
			}
		case c == '[':
			name, next, ok := readBracket(expr, i)
			if !ok {
				return toks
			}
			toks = append(toks, token{kind: tokBareRef, text: name})
			i = next
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(expr[i]) {
				i++
			}
			name := expr[start:i]
			if i < n && expr[i] == '[' {
				bracket, next, ok := readBracket(expr, i)
				if !ok {
					return toks
				}
				toks = append(toks, token{kind: tokQualifiedRef, table: name, text: bracket})
				i = next
			} else {
				toks = append(toks, token{kind: tokIdent, text: name})
			}
		default:
			toks = append(toks, token{kind: tokOther, text: string(c)})
			i++
		}
	}
	return toks
}

// skipString advances past a double-quoted literal. "" escapes a quote.
func skipString(expr string, i int) int {
	i++ // opening quote
	for i < len(expr) {
		if expr[i] == '"' {
			if i+1 < len(expr) && expr[i+1] == '"' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

// skipLineComment advances past -- or // to end of line.
func skipLineComment(expr string, i int) int {
	for i < len(expr) && expr[i] != '\n' {
		i++
	}
	return i
}

// skipBlockComment advances past /* ... */.
func skipBlockComment(expr string, i int) int {
	end := strings.Index(expr[i+2:], "*/")
	if end < 0 {
		return len(expr)
	}
	return i + 2 + end + 2
}

// readQuoted reads a 'quoted identifier' starting at the opening quote.
func readQuoted(expr string, i int) (name string, next int, ok bool) {
	end := strings.IndexByte(expr[i+1:], '\'')
	if end < 0 {
		return "", len(expr), false
	}
	return expr[i+1 : i+1+end], i + end + 2, true
}

// readBracket reads a [bracketed name] starting at the opening bracket.
// ]] escapes a closing bracket inside the name.
func readBracket(expr string, i int) (name string, next int, ok bool) {
	var b strings.Builder
	j := i + 1
	for j < len(expr) {
		if expr[j] == ']' {
			if j+1 < len(expr) && expr[j+1] == ']' {
				b.WriteByte(']')
				j += 2
				continue
			}
			return strings.TrimSpace(b.String()), j + 1, true
		}
		b.WriteByte(expr[j])
		j++
	}
	return "", len(expr), false
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.'
}
