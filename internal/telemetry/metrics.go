package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	JobsCreated        metric.Int64Counter
	JobsCompleted      metric.Int64Counter
	JobsFailed         metric.Int64Counter
	TokensStreamed     metric.Int64Counter
	ComponentsAccepted metric.Int64Counter
	ComponentsRejected metric.Int64Counter
	StreamDuration     metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-insights-backend")

	jobsCreated, err := meter.Int64Counter(
		"jobs.created.total",
		metric.WithDescription("Total query jobs created"),
	)
	if err != nil {
		return nil, err
	}

	jobsCompleted, err := meter.Int64Counter(
		"jobs.completed.total",
		metric.WithDescription("Total jobs that reached completed status"),
	)
	if err != nil {
		return nil, err
	}

	jobsFailed, err := meter.Int64Counter(
		"jobs.failed.total",
		metric.WithDescription("Total jobs that reached error status"),
	)
	if err != nil {
		return nil, err
	}

	tokensStreamed, err := meter.Int64Counter(
		"stream.tokens.total",
		metric.WithDescription("Total text fragments streamed to clients"),
	)
	if err != nil {
		return nil, err
	}

	componentsAccepted, err := meter.Int64Counter(
		"viz.components.accepted",
		metric.WithDescription("Visualization candidates that passed validation"),
	)
	if err != nil {
		return nil, err
	}

	componentsRejected, err := meter.Int64Counter(
		"viz.components.rejected",
		metric.WithDescription("Visualization candidates rejected or unparseable"),
	)
	if err != nil {
		return nil, err
	}

	streamDuration, err := meter.Float64Histogram(
		"stream.duration",
		metric.WithDescription("End-to-end job stream duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		JobsCreated:        jobsCreated,
		JobsCompleted:      jobsCompleted,
		JobsFailed:         jobsFailed,
		TokensStreamed:     tokensStreamed,
		ComponentsAccepted: componentsAccepted,
		ComponentsRejected: componentsRejected,
		StreamDuration:     streamDuration,
	}, nil
}

// RecordJobOutcome increments the terminal-status counter for a job.
func (m *Metrics) RecordJobOutcome(ctx context.Context, completed bool) {
	if m == nil {
		return
	}
	if completed {
		m.JobsCompleted.Add(ctx, 1)
	} else {
		m.JobsFailed.Add(ctx, 1)
	}
}

// RecordComponent counts a validation outcome for a visualization candidate.
func (m *Metrics) RecordComponent(ctx context.Context, kind string, accepted bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("component.kind", kind))
	if accepted {
		m.ComponentsAccepted.Add(ctx, 1, attrs)
	} else {
		m.ComponentsRejected.Add(ctx, 1, attrs)
	}
}
