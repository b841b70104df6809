// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PSU3D0/quickscript/pkg/errors"
)

// InvocationMetrics tracks function invocations, failures, and
// latencies across every serving surface.
type InvocationMetrics struct {
	// invocationCounter tracks total invocations by function and category
	invocationCounter metric.Int64Counter

	// errorCounter tracks failed invocations by function and error code
	errorCounter metric.Int64Counter

	// durationHistogram tracks invocation latency in milliseconds
	durationHistogram metric.Float64Histogram
}

// NewInvocationMetrics creates an invocation metrics tracker with OTEL meters.
func NewInvocationMetrics(ctx context.Context) (*InvocationMetrics, error) {
	meter := otel.Meter("quickscript/invocations")

	invocationCounter, err := meter.Int64Counter(
		"quickscript.invocations.total",
		metric.WithDescription("Total invocations by function and category"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"quickscript.invocations.errors",
		metric.WithDescription("Failed invocations by function and error code"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(
		"quickscript.invocations.duration",
		metric.WithDescription("Invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &InvocationMetrics{
		invocationCounter: invocationCounter,
		errorCounter:      errorCounter,
		durationHistogram: durationHistogram,
	}, nil
}

// RecordInvocation records one completed invocation, successful or not.
// Transports call this after dispatch with the total wall time.
func (im *InvocationMetrics) RecordInvocation(ctx context.Context, name, category string, elapsed time.Duration, err error) {
	if im == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("function", name),
		attribute.String("category", category),
	}

	im.invocationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	im.durationHistogram.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attrs...))

	if err == nil {
		return
	}

	code := "UNKNOWN"
	if qe := errors.As(err); qe != nil {
		code = string(qe.Code)
	}
	im.errorCounter.Add(ctx, 1,
		metric.WithAttributes(append(attrs, attribute.String("error.code", code))...),
	)
}
