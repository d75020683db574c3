// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for impact analysis.
var meter = otel.Meter("modeldoc.impact")

// Metrics for analysis operations.
var (
	analyzeLatency metric.Float64Histogram
	analyzeRecords metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"impact_analyze_duration_seconds",
			metric.WithDescription("Duration of change impact analyses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeRecords, err = meter.Int64Histogram(
			"impact_analyze_records",
			metric.WithDescription("Number of change records per analysis"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalysis records metrics for a completed analysis.
func recordAnalysis(ctx context.Context, duration time.Duration, records int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	analyzeLatency.Record(ctx, duration.Seconds())
	analyzeRecords.Record(ctx, int64(records))
}
