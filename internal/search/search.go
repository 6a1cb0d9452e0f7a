// Package search provides an optional ANN candidate index for the pattern
// cache. The index only narrows the candidate set: it returns pattern IDs,
// and the matcher recomputes exact cosine scores against the store of
// record, so a stale or unavailable index can degrade but never corrupt a
// query result.
package search

import (
	"context"

	"github.com/google/uuid"
)

// Result holds a pattern ID and its raw similarity score from the index.
type Result struct {
	PatternID uuid.UUID
	Score     float32
}

// Point is the data needed to upsert one pattern into the index.
type Point struct {
	ID          uuid.UUID
	CasoID      uuid.UUID
	PatternType string
	Reliability float32
	Features    []float32
}

// Index is the interface for vector candidate indexes.
// Implementations must be safe for concurrent use.
type Index interface {
	// FindSimilar returns pattern IDs similar to features within a caso.
	FindSimilar(ctx context.Context, casoID uuid.UUID, features []float32, limit int) ([]Result, error)

	// Upsert inserts or updates one pattern point.
	Upsert(ctx context.Context, p Point) error

	// Delete removes a pattern point, e.g. on deprecation.
	Delete(ctx context.Context, id uuid.UUID) error

	// Healthy returns nil if the index is reachable, or an error describing the problem.
	Healthy(ctx context.Context) error
}
