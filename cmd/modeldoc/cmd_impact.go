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
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
)

var (
	// Analysis flags
	impactReports  string
	impactMaxDepth int

	// Output flags
	impactJSON    bool
	impactCompact bool
	impactQuiet   bool
)

var impactCmd = &cobra.Command{
	Use:   "impact <old-model> <new-model>",
	Short: "Compute the downstream impact of model changes",
	Long: `Diff two model definition files and compute, for every changed entity,
the set of entities that transitively depend on it and the external reports
known to consume anything in that set.

The report inventory is a JSON file mapping entity identifiers to report
identifiers, supplied via --reports or the reports_index config key.

Examples:
  modeldoc impact model_old.tmdl model_new.tmdl
  modeldoc impact --reports reports.json --max-depth 5 old.tmdl new.tmdl
  modeldoc impact --json old.tmdl new.tmdl`,
	Args: cobra.ExactArgs(2),
	Run:  runImpactCmd,
}

func init() {
	impactCmd.Flags().StringVar(&impactReports, "reports", "",
		"Path to the JSON report inventory (entity id -> report ids)")
	impactCmd.Flags().IntVar(&impactMaxDepth, "max-depth", 0,
		"Maximum traversal depth (0 = unbounded)")
	impactCmd.Flags().BoolVar(&impactJSON, "json", false,
		"Output as JSON for scripting")
	impactCmd.Flags().BoolVar(&impactCompact, "compact", false,
		"JSON without indentation")
	impactCmd.Flags().BoolVar(&impactQuiet, "quiet", false,
		"Only exit code, no output")
	rootCmd.AddCommand(impactCmd)
}

func runImpactCmd(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	start := time.Now()
	cfg := OutputConfig{JSON: impactJSON, Compact: impactCompact, Quiet: impactQuiet}

	index, err := loadReportsIndex(impactReports)
	if err != nil {
		os.Exit(OutputResult(cfg, "impact", start, nil, false, err))
	}

	cs, oldBuild, newBuild, err := diffSnapshots(ctx, args[0], args[1])
	if err != nil {
		os.Exit(OutputResult(cfg, "impact", start, nil, false, err))
	}

	var opts []impact.AnalyzeOption
	if impactMaxDepth > 0 {
		opts = append(opts, impact.WithMaxDepth(impactMaxDepth))
	}
	report, err := impact.Analyze(ctx, cs, oldBuild.Graph, newBuild.Graph, index, opts...)
	if err != nil {
		os.Exit(OutputResult(cfg, "impact", start, nil, false, err))
	}

	if !impactQuiet && !impactJSON {
		outputImpactText(report)
	}
	os.Exit(OutputResult(cfg, "impact", start, report, len(report.Entries) > 0, nil))
}

func outputImpactText(report *impact.Report) {
	fmt.Println("Impact Analysis")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Snapshots: %s -> %s\n\n", report.OldSnapshotID, report.NewSnapshotID)

	if len(report.Entries) == 0 {
		fmt.Println("No changes, no impact.")
		return
	}

	ids := make([]string, 0, len(report.Entries))
	for id := range report.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := report.Entries[id]
		fmt.Printf("%s\n", id)
		fmt.Printf("  Affected entities: %d\n", len(entry.Affected))
		for _, a := range entry.Affected {
			fmt.Printf("    %s\n", a)
		}
		if len(entry.Reports) > 0 {
			fmt.Printf("  Reports: %s\n", strings.Join(entry.Reports, ", "))
		}
		if entry.Truncated {
			fmt.Println("  (traversal depth-capped)")
		}
		fmt.Println()
	}
	fmt.Printf("Total affected entities: %d\n", report.TotalAffected())
}
