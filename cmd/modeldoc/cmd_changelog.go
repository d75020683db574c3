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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/pipeline"
)

var (
	changelogReports  string
	changelogDiffFile string
	changelogAnnotate bool
	changelogMaxDepth int
	changelogOut      string
	changelogJSON     bool
	changelogCompact  bool
)

var changelogCmd = &cobra.Command{
	Use:   "changelog <old-model> <new-model>",
	Short: "Run the full pipeline and print the backup document",
	Long: `Run the complete analysis chain over two model definition files: parse,
graph build, diff, impact, optional annotation, render, changelog. Prints
the backup document with the suggested commit message.

With --annotate the text-generation collaborator documents undocumented
measures of the new snapshot and the merged model can be written via --out.
An externally produced unified diff can be embedded with --diff-file.

Examples:
  modeldoc changelog old.tmdl new.tmdl
  modeldoc changelog --reports reports.json --diff-file model.diff old.tmdl new.tmdl
  modeldoc changelog --annotate --out new_annotated.tmdl old.tmdl new.tmdl`,
	Args: cobra.ExactArgs(2),
	Run:  runChangelog,
}

// changelogData is the structured result for JSON output.
type changelogData struct {
	Markdown      string `json:"markdown"`
	CommitMessage string `json:"commit_message"`
	Changes       int    `json:"changes"`
	TotalAffected int    `json:"total_affected"`
}

func init() {
	changelogCmd.Flags().StringVar(&changelogReports, "reports", "",
		"Path to the JSON report inventory (entity id -> report ids)")
	changelogCmd.Flags().StringVar(&changelogDiffFile, "diff-file", "",
		"Unified diff of the two files to embed in the document")
	changelogCmd.Flags().BoolVar(&changelogAnnotate, "annotate", false,
		"Annotate undocumented measures of the new snapshot")
	changelogCmd.Flags().IntVar(&changelogMaxDepth, "max-depth", 0,
		"Maximum impact traversal depth (0 = unbounded)")
	changelogCmd.Flags().StringVar(&changelogOut, "out", "",
		"Write the rendered (possibly annotated) new model to this file")
	changelogCmd.Flags().BoolVar(&changelogJSON, "json", false,
		"Output as JSON for scripting")
	changelogCmd.Flags().BoolVar(&changelogCompact, "compact", false,
		"JSON without indentation")
	rootCmd.AddCommand(changelogCmd)
}

func runChangelog(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	start := time.Now()
	cfg := OutputConfig{JSON: changelogJSON, Compact: changelogCompact}

	index, err := loadReportsIndex(changelogReports)
	if err != nil {
		os.Exit(OutputResult(cfg, "changelog", start, nil, false, err))
	}

	var unified string
	if changelogDiffFile != "" {
		data, err := os.ReadFile(changelogDiffFile)
		if err != nil {
			os.Exit(OutputResult(cfg, "changelog", start, nil, false, err))
		}
		unified = string(data)
	}

	opts := []pipeline.Option{
		pipeline.WithConsumerIndex(index),
		pipeline.WithMaxDepth(changelogMaxDepth),
	}
	if changelogAnnotate {
		client, err := llm.NewClient(config.Collaborator)
		if err != nil {
			os.Exit(OutputResult(cfg, "changelog", start, nil, false, err))
		}
		opts = append(opts, pipeline.WithCollaborator(client))
	}

	art, err := pipeline.New(opts...).Run(ctx, pipeline.Input{
		OldText:     readModelFile(args[0], changelogJSON),
		NewText:     readModelFile(args[1], changelogJSON),
		UnifiedDiff: unified,
	})
	if err != nil {
		os.Exit(OutputResult(cfg, "changelog", start, nil, false, err))
	}

	if changelogOut != "" {
		if err := os.WriteFile(changelogOut, []byte(art.Rendered), 0644); err != nil {
			os.Exit(OutputResult(cfg, "changelog", start, nil, false, err))
		}
	}
	if art.Annotation != nil {
		for _, f := range art.Annotation.Failures {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", f)
		}
	}

	if !changelogJSON {
		fmt.Print(art.Changelog.Markdown)
		fmt.Printf("\nSuggested commit message:\n%s\n", art.Changelog.CommitMessage)
	}

	data := changelogData{
		Markdown:      art.Changelog.Markdown,
		CommitMessage: art.Changelog.CommitMessage,
		Changes:       len(art.ChangeSet.Records),
		TotalAffected: art.Impact.TotalAffected(),
	}
	os.Exit(OutputResult(cfg, "changelog", start, data, !art.ChangeSet.IsEmpty(), nil))
}
