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
	"golang.org/x/time/rate"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/annotate"
	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/render"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

var (
	annotateOut     string
	annotateAll     bool
	annotateJSON    bool
	annotateCompact bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <model>",
	Short: "Document undocumented measures via the text-generation collaborator",
	Long: `Parse a model definition file, build its dependency graph, and ask the
text-generation collaborator to document measures that have no description.
Validated replies are merged and the model is rendered back out with only
the annotated lines changed.

Requires OPENAI_API_KEY (or the container secret). Failed entities keep
their prior annotations; the command reports them and still writes the
successfully annotated model.

Examples:
  modeldoc annotate model.tmdl                    # rendered model to stdout
  modeldoc annotate --out model.tmdl model.tmdl   # rewrite in place
  modeldoc annotate --all model.tmdl              # re-document everything`,
	Args: cobra.ExactArgs(1),
	Run:  runAnnotate,
}

// annotateSummary is the structured result for JSON output.
type annotateSummary struct {
	Annotated []string            `json:"annotated"`
	Skipped   []string            `json:"skipped"`
	Failures  []string            `json:"failures,omitempty"`
	Issues    map[string][]string `json:"issues,omitempty"`
}

func init() {
	annotateCmd.Flags().StringVar(&annotateOut, "out", "",
		"Write the rendered model to this file instead of stdout")
	annotateCmd.Flags().BoolVar(&annotateAll, "all", false,
		"Re-annotate measures that already have a description")
	annotateCmd.Flags().BoolVar(&annotateJSON, "json", false,
		"Print a JSON run summary instead of the rendered model")
	annotateCmd.Flags().BoolVar(&annotateCompact, "compact", false,
		"JSON without indentation")
	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	start := time.Now()
	cfg := OutputConfig{JSON: annotateJSON, Compact: annotateCompact}

	text := readModelFile(args[0], annotateJSON)
	model, err := tmdl.Parse(ctx, text)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}
	build, err := graph.NewBuilder().Build(ctx, model)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}

	client, err := llm.NewClient(config.Collaborator)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}

	opts := []annotate.Option{annotate.WithAll(annotateAll)}
	if config.Annotate.Concurrency > 0 {
		opts = append(opts, annotate.WithConcurrency(config.Annotate.Concurrency))
	}
	if config.Annotate.RateLimit > 0 {
		opts = append(opts, annotate.WithRateLimit(rate.Limit(config.Annotate.RateLimit), annotate.DefaultRateBurst))
	}
	coord, err := annotate.NewCoordinator(client, opts...)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}

	outcome, err := coord.Run(ctx, model, build, nil)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}

	rendered, err := render.Render(ctx, outcome.Model)
	if err != nil {
		os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
	}

	if annotateOut != "" {
		if err := os.WriteFile(annotateOut, []byte(rendered), 0644); err != nil {
			os.Exit(OutputResult(cfg, "annotate", start, nil, false, err))
		}
	} else if !annotateJSON {
		fmt.Print(rendered)
	}

	for _, f := range outcome.Failures {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", f)
	}

	summary := annotateSummary{
		Annotated: outcome.Annotated,
		Skipped:   outcome.Skipped,
		Issues:    outcome.Issues,
	}
	for _, f := range outcome.Failures {
		summary.Failures = append(summary.Failures, f.Error())
	}
	os.Exit(OutputResult(cfg, "annotate", start, summary, len(outcome.Failures) > 0, nil))
}
