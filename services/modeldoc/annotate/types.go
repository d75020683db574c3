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
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/modeldoc/services/modeldoc/diff"
	"github.com/AleutianAI/modeldoc/services/modeldoc/tmdl"
)

// Default coordinator settings.
const (
	// DefaultConcurrency bounds simultaneous collaborator calls.
	DefaultConcurrency = 4

	// DefaultPerCallTimeout bounds one collaborator call.
	DefaultPerCallTimeout = 45 * time.Second

	// DefaultRateLimit is the sustained collaborator call rate per second.
	DefaultRateLimit = rate.Limit(2)

	// DefaultRateBurst is the collaborator call burst size.
	DefaultRateBurst = 4
)

// ReferenceFact is one resolved reference in a fact bundle.
type ReferenceFact struct {
	// TargetID is the referenced entity.
	TargetID string `json:"target_id"`

	// Kind is the reference kind (column-read, measure-call, ...).
	Kind string `json:"kind"`
}

// Request is the structured fact bundle handed to the text-generation
// collaborator for one entity. It is the unit of work: facts in, structured
// reply out, no free-form context.
type Request struct {
	// ID is a unique request identifier for correlation and retries.
	ID string `json:"id"`

	// EntityID is the entity to document.
	EntityID string `json:"entity_id"`

	// Kind is the entity kind as a string.
	Kind string `json:"kind"`

	// Table is the enclosing table, if any.
	Table string `json:"table,omitempty"`

	// Expression is the entity's source expression, if any.
	Expression string `json:"expression,omitempty"`

	// References lists the entity's resolved outgoing references.
	References []ReferenceFact `json:"references,omitempty"`

	// FilterPaths lists the targets reached through filter-propagation.
	FilterPaths []string `json:"filter_paths,omitempty"`

	// PriorDescription is the existing description, if any.
	PriorDescription string `json:"prior_description,omitempty"`

	// PriorTechnicalNotes is the existing technical notes, if any.
	PriorTechnicalNotes string `json:"prior_technical_notes,omitempty"`

	// DisplayFolder is the existing display folder, if any.
	DisplayFolder string `json:"display_folder,omitempty"`

	// Warnings carries analysis warning messages for the entity, so the
	// collaborator can mention suspect references as issues.
	Warnings []string `json:"warnings,omitempty"`

	// Change is the entity's change record from the current diff, if any.
	Change *diff.ChangeRecord `json:"change,omitempty"`
}

// Response is the collaborator's structured reply for one entity.
//
// The shape is fixed: description is required; everything else is optional.
// ReferencedEntities is checked against the dependency graph before any
// field is merged.
type Response struct {
	// Description is the human-readable description. Required.
	Description string `json:"description" validate:"required"`

	// TechnicalNotes documents calculation details.
	TechnicalNotes string `json:"technical_notes"`

	// Issues lists problems the collaborator noticed.
	Issues []string `json:"issues,omitempty"`

	// DisplayFolder is a proposed grouping label. Empty keeps the current one.
	DisplayFolder string `json:"display_folder"`

	// ReferencedEntities lists the entity identifiers the reply's text
	// relies on. Every one must exist in the graph.
	ReferencedEntities []string `json:"referenced_entities,omitempty"`
}

// Outcome is the result of one annotation run.
type Outcome struct {
	// Model is the new immutable snapshot with merged annotations. Entities
	// whose calls failed keep their prior values.
	Model *tmdl.Model

	// Annotated lists the entity identifiers successfully merged, sorted.
	Annotated []string

	// Issues maps entity identifiers to the issue lists their responses
	// carried.
	Issues map[string][]string

	// Failures records per-entity validation errors and collaborator
	// failures, sorted by entity identifier. Never aborts the run.
	Failures []error

	// Skipped lists the entities excluded by the selection policy, sorted.
	Skipped []string
}

// Options configures a Coordinator.
type Options struct {
	// Concurrency bounds simultaneous collaborator calls.
	Concurrency int

	// PerCallTimeout bounds each collaborator call.
	PerCallTimeout time.Duration

	// RateLimit and RateBurst shape the call rate.
	RateLimit rate.Limit
	RateBurst int

	// All annotates every measure. The default annotates only measures
	// with an empty description.
	All bool
}

// Option is a functional option for configuring a Coordinator.
type Option func(*Options)

// WithConcurrency bounds simultaneous collaborator calls.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithPerCallTimeout bounds each collaborator call.
func WithPerCallTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.PerCallTimeout = d
	}
}

// WithRateLimit shapes the sustained call rate and burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *Options) {
		o.RateLimit = limit
		o.RateBurst = burst
	}
}

// WithAll annotates every measure, not only undocumented ones.
func WithAll(all bool) Option {
	return func(o *Options) {
		o.All = all
	}
}
