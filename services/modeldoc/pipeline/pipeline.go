// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the full analysis chain over two model snapshots.
//
// The chain is parse, build, diff, impact, optional annotation, render,
// changelog. The pipeline owns no storage and performs no I/O beyond
// collaborator calls; it takes two text snapshots and returns derived
// artifacts for the caller to persist or act on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/annotate"
	"github.com/AleutianAI/modeldoc/services/modeldoc/changelog"
	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/impact"
	"github.com/AleutianAI/modeldoc/services/modeldoc/render"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// ErrInvalidInput indicates a nil context or empty input text.
var ErrInvalidInput = errors.New("invalid input")

// Input is one pipeline run's raw material.
type Input struct {
	// OldText is the previous model definition text.
	OldText string

	// NewText is the current model definition text.
	NewText string

	// UnifiedDiff is an externally produced textual diff of the two files,
	// included verbatim in the changelog when present.
	UnifiedDiff string
}

// Artifacts is everything one pipeline run derives.
type Artifacts struct {
	// OldModel and NewModel are the parsed snapshots.
	OldModel *tmdl.Model
	NewModel *tmdl.Model

	// OldBuild and NewBuild carry the dependency graphs plus warnings.
	OldBuild *graph.BuildResult
	NewBuild *graph.BuildResult

	// ChangeSet is the typed diff of the two snapshots.
	ChangeSet *diff.ChangeSet

	// Impact maps each changed entity to its downstream impact.
	Impact *impact.Report

	// Annotation is the annotation outcome, nil when no collaborator was
	// configured.
	Annotation *annotate.Outcome

	// Rendered is the new snapshot rendered back to text, with merged
	// annotations when annotation ran.
	Rendered string

	// Changelog is the backup document and commit message suggestion.
	Changelog *changelog.Document
}

// Options configures an Engine.
type Options struct {
	// Collaborator is the text-generation client used for annotation and
	// changelog prose. Nil disables annotation and selects deterministic
	// changelog prose.
	Collaborator llm.Client

	// Index resolves entity identifiers to consuming report identifiers.
	// Nil yields impact entries without report sets.
	Index impact.ConsumerIndex

	// MaxDepth caps impact traversal. Zero means unbounded.
	MaxDepth int

	// AnnotateAll re-annotates documented measures too.
	AnnotateAll bool

	// Logger receives run-level progress. Nil means slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithCollaborator sets the text-generation client.
func WithCollaborator(client llm.Client) Option {
	return func(o *Options) { o.Collaborator = client }
}

// WithConsumerIndex sets the report inventory.
func WithConsumerIndex(index impact.ConsumerIndex) Option {
	return func(o *Options) { o.Index = index }
}

// WithMaxDepth caps impact traversal depth.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// WithAnnotateAll re-annotates measures that already have a description.
func WithAnnotateAll(all bool) Option {
	return func(o *Options) { o.AnnotateAll = all }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Engine runs the analysis chain. Safe for concurrent use.
type Engine struct {
	opts Options
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	options := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Engine{opts: options}
}

// Run executes the full chain over two model snapshots.
//
// # Description
//
// Both snapshots are parsed and graph-built concurrently, then diffed. The
// impact report covers every change record. When a collaborator is
// configured, undocumented measures of the new snapshot are annotated and
// the merged snapshot is rendered; otherwise the new snapshot renders
// byte-identical to its input text. The changelog is always produced.
//
// # Outputs
//
//   - *Artifacts: All derived artifacts of the run.
//   - error: ErrInvalidInput, a parse or build error, or a context error.
//     Per-entity annotation failures are on Artifacts.Annotation, not here.
func (e *Engine) Run(ctx context.Context, in Input) (*Artifacts, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.OldText == "" || in.NewText == "" {
		return nil, fmt.Errorf("%w: empty model text", ErrInvalidInput)
	}
	start := time.Now()

	art := &Artifacts{}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		art.OldModel, art.OldBuild, err = parseAndBuild(egCtx, in.OldText)
		if err != nil {
			return fmt.Errorf("old snapshot: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		art.NewModel, art.NewBuild, err = parseAndBuild(egCtx, in.NewText)
		if err != nil {
			return fmt.Errorf("new snapshot: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	cs, err := diff.Diff(ctx, art.OldBuild.Graph, art.NewBuild.Graph)
	if err != nil {
		return nil, err
	}
	art.ChangeSet = cs

	var impactOpts []impact.AnalyzeOption
	if e.opts.MaxDepth > 0 {
		impactOpts = append(impactOpts, impact.WithMaxDepth(e.opts.MaxDepth))
	}
	art.Impact, err = impact.Analyze(ctx, cs, art.OldBuild.Graph, art.NewBuild.Graph, e.opts.Index, impactOpts...)
	if err != nil {
		return nil, err
	}

	renderModel := art.NewModel
	if e.opts.Collaborator != nil {
		coord, err := annotate.NewCoordinator(e.opts.Collaborator, annotate.WithAll(e.opts.AnnotateAll))
		if err != nil {
			return nil, err
		}
		art.Annotation, err = coord.Run(ctx, art.NewModel, art.NewBuild, cs)
		if err != nil {
			return nil, err
		}
		renderModel = art.Annotation.Model
	}

	art.Rendered, err = render.Render(ctx, renderModel)
	if err != nil {
		return nil, err
	}

	art.Changelog, err = changelog.NewBuilder(e.opts.Collaborator).Build(ctx, changelog.Input{
		ChangeSet:   cs,
		Impact:      art.Impact,
		UnifiedDiff: in.UnifiedDiff,
	})
	if err != nil {
		return nil, err
	}

	e.opts.Logger.InfoContext(ctx, "pipeline run complete",
		"changes", len(cs.Records),
		"affected", art.Impact.TotalAffected(),
		"duration", time.Since(start),
	)
	return art, nil
}

// parseAndBuild parses one snapshot and builds its dependency graph.
func parseAndBuild(ctx context.Context, text string) (*tmdl.Model, *graph.BuildResult, error) {
	model, err := tmdl.Parse(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	build, err := graph.NewBuilder().Build(ctx, model)
	if err != nil {
		return nil, nil, err
	}
	return model, build, nil
}
