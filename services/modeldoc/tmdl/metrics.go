// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tmdl

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for model parsing.
var meter = otel.Meter("modeldoc.tmdl")

// Metrics for parse operations.
var (
	parseLatency   metric.Float64Histogram
	parseTotal     metric.Int64Counter
	entitiesParsed metric.Int64Histogram
	parseFailures  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"tmdl_parse_duration_seconds",
			metric.WithDescription("Duration of model parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"tmdl_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entitiesParsed, err = meter.Int64Histogram(
			"tmdl_entities_parsed",
			metric.WithDescription("Number of entities extracted per parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseFailures, err = meter.Int64Counter(
			"tmdl_parse_errors_total",
			metric.WithDescription("Total number of parse failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParse records metrics for a successful parse.
func recordParse(ctx context.Context, duration time.Duration, entityCount int) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}
	attrs := metric.WithAttributes(attribute.Bool("success", true))
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)
	entitiesParsed.Record(ctx, int64(entityCount))
}

// recordParseError records metrics for a failed parse.
func recordParseError(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", false))
	parseTotal.Add(ctx, 1, attrs)
	parseFailures.Add(ctx, 1)
}
