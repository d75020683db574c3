// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import "fmt"

// NewClient builds the named text-generation backend. Supported backends
// are "openai" (the default when name is empty) and "ollama" for local
// inference.
func NewClient(name string) (Client, error) {
	switch name {
	case "", "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown collaborator backend %q", name)
	}
}
