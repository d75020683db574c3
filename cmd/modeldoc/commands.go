// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Persistent flags shared by every subcommand.
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "modeldoc",
	Short: "Analyze and document tabular semantic models",
	Long: `modeldoc analyzes tabular semantic model definitions: it parses the
model text, builds a dependency graph from measure expressions and declared
relationships, diffs two snapshots, computes change impact, and optionally
asks a text-generation collaborator to document undocumented measures.

The engine never writes model files or talks to version control; every
command reads files and prints derived artifacts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "modeldoc.yaml",
		"Path to the optional YAML config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Log progress to stderr")
}

// readModelFile loads one model definition file, exiting on failure.
func readModelFile(path string, jsonMode bool) string {
	data, err := os.ReadFile(path)
	if err != nil {
		OutputError(jsonMode, "Failed to read model file", err)
		os.Exit(CLIExitError)
	}
	return string(data)
}
