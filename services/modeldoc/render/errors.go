// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render writes a model snapshot back out as definition text.
//
// # Format Preservation
//
// Rendering works from the snapshot's retained source lines, not from the
// parsed structure. Blocks belonging to clean entities are emitted byte for
// byte. For dirty entities only the property lines whose values actually
// changed are rewritten in place, and properties added after parse are
// inserted at the end of the entity's block with matching indentation.
// Everything the parser carried opaquely (unknown blocks, comments, blank
// lines, unusual spacing inside untouched lines) survives unchanged.
package render

import "errors"

// ErrInvalidInput indicates a nil context or nil model.
var ErrInvalidInput = errors.New("invalid input")
