// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/modeldoc/services/llm"
	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/graph"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

const promptTemplate = `Document the following tabular-model entity from its structured facts.
Reply with a single JSON object of this exact shape:
{"description": "...", "technical_notes": "...", "issues": ["..."], "display_folder": "...", "referenced_entities": ["..."]}
Only mention entities listed in the facts. Facts:
%s`

// Coordinator fans annotation requests out to the text-generation
// collaborator and merges validated replies into a new model snapshot.
//
// A Coordinator is safe for concurrent use; each Run works on its own
// cloned snapshot.
type Coordinator struct {
	client  llm.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	opts    Options
}

// NewCoordinator builds a Coordinator around a text-generation client.
func NewCoordinator(client llm.Client, opts ...Option) (*Coordinator, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	options := Options{
		Concurrency:    DefaultConcurrency,
		PerCallTimeout: DefaultPerCallTimeout,
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Concurrency < 1 {
		options.Concurrency = 1
	}
	return &Coordinator{
		client:  client,
		limiter: rate.NewLimiter(options.RateLimit, options.RateBurst),
		logger:  slog.Default(),
		opts:    options,
	}, nil
}

// Run annotates the selected entities of a model snapshot.
//
// # Description
//
// Selection defaults to measures with an empty description; WithAll(true)
// selects every measure. Calls to the collaborator run concurrently under a
// rate limiter, each with its own timeout, keyed by entity identifier.
// Failed entities keep their prior annotations and are reported on the
// Outcome; only a canceled parent context aborts the run.
//
// # Inputs
//
//   - ctx: Context for cancellation. Must be non-nil.
//   - model: The snapshot to annotate. Never mutated; the Outcome carries a
//     new snapshot.
//   - build: The snapshot's build result (graph plus warnings).
//   - cs: The current change set, or nil outside a diff pipeline.
//
// # Outputs
//
//   - *Outcome: New snapshot, annotated/skipped identifiers, failures.
//   - error: ErrInvalidInput or a context error. Per-entity failures are on
//     the Outcome, not here.
func (c *Coordinator) Run(ctx context.Context, model *tmdl.Model, build *graph.BuildResult, cs *diff.ChangeSet) (*Outcome, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model == nil || build == nil || build.Graph == nil {
		return nil, fmt.Errorf("%w: nil model or build result", ErrInvalidInput)
	}
	start := time.Now()

	clone := model.Clone()
	targets, skipped := c.selectTargets(clone)
	outcome := &Outcome{
		Model:   clone,
		Issues:  make(map[string][]string),
		Skipped: skipped,
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Concurrency)

	for _, entity := range targets {
		entity := entity
		eg.Go(func() error {
			req, err := c.BuildRequest(entity, build, cs)
			if err != nil {
				return err
			}
			resp, err := c.callCollaborator(egCtx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Parent cancellation aborts the run; everything else is an
				// isolated per-entity failure.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				outcome.Failures = append(outcome.Failures, &CollaboratorFailure{EntityID: entity.ID, Err: err})
				return nil
			}
			if err := c.MergeResponse(entity, resp, build.Graph); err != nil {
				outcome.Failures = append(outcome.Failures, err)
				return nil
			}
			outcome.Annotated = append(outcome.Annotated, entity.ID)
			if len(resp.Issues) > 0 {
				outcome.Issues[entity.ID] = resp.Issues
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(outcome.Annotated)
	sort.Slice(outcome.Failures, func(i, j int) bool {
		return failureEntityID(outcome.Failures[i]) < failureEntityID(outcome.Failures[j])
	})
	recordRun(ctx, time.Since(start), len(outcome.Annotated), len(outcome.Failures))
	c.logger.InfoContext(ctx, "annotation run complete",
		"annotated", len(outcome.Annotated),
		"failed", len(outcome.Failures),
		"skipped", len(outcome.Skipped),
	)
	return outcome, nil
}

// selectTargets applies the selection policy to the cloned snapshot and
// returns the entities to annotate plus the sorted skipped identifiers.
func (c *Coordinator) selectTargets(model *tmdl.Model) (targets []*tmdl.Entity, skipped []string) {
	skipped = []string{}
	for _, m := range model.Measures() {
		if c.opts.All || m.Description == "" {
			targets = append(targets, m)
		} else {
			skipped = append(skipped, m.ID)
		}
	}
	sort.Strings(skipped)
	return targets, skipped
}

// BuildRequest assembles the structured fact bundle for one entity.
//
// The bundle carries everything the collaborator may rely on: resolved
// references, filter-propagation targets, prior annotations, analysis
// warnings, and the entity's change record if it has one.
func (c *Coordinator) BuildRequest(e *tmdl.Entity, build *graph.BuildResult, cs *diff.ChangeSet) (*Request, error) {
	if e == nil || build == nil || build.Graph == nil {
		return nil, fmt.Errorf("%w: nil entity or build result", ErrInvalidInput)
	}
	req := &Request{
		ID:                  uuid.NewString(),
		EntityID:            e.ID,
		Kind:                e.Kind.String(),
		Table:               e.Table,
		Expression:          e.Expression,
		PriorDescription:    e.Description,
		PriorTechnicalNotes: e.TechnicalNotes,
		DisplayFolder:       e.DisplayFolder,
	}

	if node, ok := build.Graph.GetNode(e.ID); ok {
		for _, edge := range node.Outgoing {
			req.References = append(req.References, ReferenceFact{
				TargetID: edge.ToID,
				Kind:     edge.Type.String(),
			})
			if edge.Type == graph.EdgeTypeFilterPropagation {
				req.FilterPaths = append(req.FilterPaths, edge.ToID)
			}
		}
		for _, w := range node.AnalysisWarnings {
			req.Warnings = append(req.Warnings, w.Message)
		}
		for _, w := range node.StructuralWarnings {
			req.Warnings = append(req.Warnings, w.Message)
		}
	}
	sort.Slice(req.References, func(i, j int) bool {
		ri, rj := req.References[i], req.References[j]
		if ri.TargetID != rj.TargetID {
			return ri.TargetID < rj.TargetID
		}
		return ri.Kind < rj.Kind
	})
	sort.Strings(req.FilterPaths)

	if cs != nil {
		if rec, ok := cs.ForEntity(e.ID); ok {
			req.Change = &rec
		}
	}
	return req, nil
}

// callCollaborator issues one rate-limited, timeout-bounded generation call
// and decodes the JSON reply.
func (c *Coordinator) callCollaborator(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.PerCallTimeout)
	defer cancel()

	facts, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Generate(callCtx, fmt.Sprintf(promptTemplate, facts), llm.GenerationParams{JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("collaborator reply is not valid JSON: %w", err)
	}
	return &resp, nil
}

// failureEntityID extracts the entity identifier from a per-entity failure
// for deterministic ordering.
func failureEntityID(err error) string {
	switch f := err.(type) {
	case *ValidationError:
		return f.EntityID
	case *CollaboratorFailure:
		return f.EntityID
	default:
		return ""
	}
}
