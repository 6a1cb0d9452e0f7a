package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics holds the instruments the pattern cache records on its two
// hot paths. All instruments come from the global meter provider, so they
// are no-ops until Init runs with an endpoint.
type CacheMetrics struct {
	hintsServed   metric.Int64Counter
	hintsEmpty    metric.Int64Counter
	learnOutcomes metric.Int64Counter
	similarity    metric.Float64Histogram
}

// NewCacheMetrics registers the pattern-cache instruments.
func NewCacheMetrics() (*CacheMetrics, error) {
	meter := Meter("lexvector")

	hintsServed, err := meter.Int64Counter("lexvector.hints_served",
		metric.WithDescription("Queries that returned a usable pattern hint"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: hints_served counter: %w", err)
	}
	hintsEmpty, err := meter.Int64Counter("lexvector.hints_empty",
		metric.WithDescription("Queries with no candidate above the similarity threshold"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: hints_empty counter: %w", err)
	}
	learnOutcomes, err := meter.Int64Counter("lexvector.learn_outcomes",
		metric.WithDescription("Learn calls, partitioned by state-machine transition"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: learn_outcomes counter: %w", err)
	}
	similarity, err := meter.Float64Histogram("lexvector.hint_similarity",
		metric.WithDescription("Similarity score of served hints"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: hint_similarity histogram: %w", err)
	}

	return &CacheMetrics{
		hintsServed:   hintsServed,
		hintsEmpty:    hintsEmpty,
		learnOutcomes: learnOutcomes,
		similarity:    similarity,
	}, nil
}

// RecordHint counts one query result and, when a hint was served, its score.
func (m *CacheMetrics) RecordHint(ctx context.Context, served bool, score float64) {
	if m == nil {
		return
	}
	if !served {
		m.hintsEmpty.Add(ctx, 1)
		return
	}
	m.hintsServed.Add(ctx, 1)
	m.similarity.Record(ctx, score)
}

// RecordLearn counts one learn call by transition name.
func (m *CacheMetrics) RecordLearn(ctx context.Context, transition string) {
	if m == nil {
		return
	}
	m.learnOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}
