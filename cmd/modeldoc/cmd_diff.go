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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

var (
	diffJSON    bool
	diffCompact bool
	diffQuiet   bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-model> <new-model>",
	Short: "Compare two model snapshots",
	Long: `Compare two model definition files and print the typed change set.

Records are ordered Removed, Modified, Added, each group sorted by entity
identifier, so output is stable across runs.

Examples:
  modeldoc diff model_old.tmdl model_new.tmdl
  modeldoc diff --json model_old.tmdl model_new.tmdl

CI/CD Integration:
  modeldoc diff --quiet old.tmdl new.tmdl
  (exits 1 when the snapshots differ, 0 when identical, 2 on error)`,
	Args: cobra.ExactArgs(2),
	Run:  runDiff,
}

func init() {
	diffCmd.Flags().BoolVar(&diffJSON, "json", false,
		"Output as JSON for scripting")
	diffCmd.Flags().BoolVar(&diffCompact, "compact", false,
		"JSON without indentation")
	diffCmd.Flags().BoolVar(&diffQuiet, "quiet", false,
		"Only exit code, no output")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	start := time.Now()

	cs, _, _, err := diffSnapshots(ctx, args[0], args[1])
	cfg := OutputConfig{JSON: diffJSON, Compact: diffCompact, Quiet: diffQuiet}
	if err != nil {
		os.Exit(OutputResult(cfg, "diff", start, nil, false, err))
	}

	if !diffQuiet && !diffJSON {
		outputDiffText(cs)
	}
	os.Exit(OutputResult(cfg, "diff", start, cs, !cs.IsEmpty(), nil))
}

// diffSnapshots parses both files, builds both graphs, and diffs them.
func diffSnapshots(ctx context.Context, oldPath, newPath string) (*diff.ChangeSet, *graph.BuildResult, *graph.BuildResult, error) {
	oldBuild, err := buildSnapshot(ctx, oldPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", oldPath, err)
	}
	newBuild, err := buildSnapshot(ctx, newPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", newPath, err)
	}
	cs, err := diff.Diff(ctx, oldBuild.Graph, newBuild.Graph)
	if err != nil {
		return nil, nil, nil, err
	}
	return cs, oldBuild, newBuild, nil
}

// buildSnapshot parses one model file and builds its dependency graph.
func buildSnapshot(ctx context.Context, path string) (*graph.BuildResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model, err := tmdl.Parse(ctx, string(data))
	if err != nil {
		return nil, err
	}
	return graph.NewBuilder().Build(ctx, model)
}

func outputDiffText(cs *diff.ChangeSet) {
	fmt.Println("Model Diff")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Snapshots: %s -> %s\n\n", cs.OldSnapshotID, cs.NewSnapshotID)

	if cs.IsEmpty() {
		fmt.Println("No changes.")
		return
	}
	for _, rec := range cs.Records {
		switch rec.Type {
		case diff.Removed:
			fmt.Printf("  - removed  %-12s %s\n", rec.KindName, rec.EntityID)
		case diff.Modified:
			fields := make([]string, 0, len(rec.Fields))
			for _, fd := range rec.Fields {
				fields = append(fields, fd.Field)
			}
			fmt.Printf("  ~ modified %-12s %s (%s)\n", rec.KindName, rec.EntityID, strings.Join(fields, ", "))
		case diff.Added:
			fmt.Printf("  + added    %-12s %s\n", rec.KindName, rec.EntityID)
		}
	}

	added, removed, modified := cs.Counts()
	fmt.Printf("\n%d added, %d removed, %d modified\n", added, removed, modified)
}
