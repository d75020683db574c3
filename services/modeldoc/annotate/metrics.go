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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for annotation runs.
var meter = otel.Meter("modeldoc.annotate")

// Metrics for annotation runs.
var (
	runLatency     metric.Float64Histogram
	entitiesMerged metric.Int64Counter
	entitiesFailed metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"annotate_run_duration_seconds",
			metric.WithDescription("Duration of annotation runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entitiesMerged, err = meter.Int64Counter(
			"annotate_entities_merged_total",
			metric.WithDescription("Entities whose annotations merged successfully"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entitiesFailed, err = meter.Int64Counter(
			"annotate_entities_failed_total",
			metric.WithDescription("Entities whose annotation calls failed or were rejected"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRun records metrics for one annotation run.
func recordRun(ctx context.Context, duration time.Duration, merged, failed int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	runLatency.Record(ctx, duration.Seconds())
	entitiesMerged.Add(ctx, int64(merged))
	entitiesFailed.Add(ctx, int64(failed))
}
