// Package matcher implements the read path of the pattern cache: cosine
// similarity search over a caso's learned patterns.
//
// The matcher never mutates stored state — not even last_used_at — so reads
// may run concurrently with writers and at worst observe a slightly stale
// snapshot, which is acceptable for a soft suggestion.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/search"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
)

// PatternSource is the read-only store access the matcher needs.
type PatternSource interface {
	GetCaso(ctx context.Context, id uuid.UUID) (model.Caso, error)
	ListActivePatterns(ctx context.Context, casoID uuid.UUID) ([]model.PatternRecord, error)
	GetPattern(ctx context.Context, id uuid.UUID) (model.PatternRecord, error)
}

// Config holds the matching tunables.
type Config struct {
	Dimensions          int
	SimilarityThreshold float64
	ReliabilityFloor    float64
	MaxCandidates       int
}

// Matcher finds the stored pattern most similar to a query signature.
type Matcher struct {
	store  PatternSource
	index  search.Index // optional ANN pre-filter; nil means brute force
	cfg    Config
	logger *slog.Logger
}

// New creates a Matcher. index may be nil, in which case every query scans
// all active patterns of the caso.
func New(store PatternSource, index search.Index, cfg Config, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, index: index, cfg: cfg, logger: logger}
}

// Cosine computes cosine similarity between two vectors of equal length.
// A zero vector on either side yields 0 by convention (no division by zero),
// so zero vectors are never selected as candidates.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// isZero reports whether every component of v is zero.
func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Candidate pairs a surviving pattern with its exact similarity score.
type Candidate struct {
	Record model.PatternRecord
	Score  float64
}

// FindCandidates returns all non-deprecated patterns of the caso whose
// similarity to query is at or above the threshold, ordered best first:
// score descending, tie-broken by reliability descending, then last_used_at
// descending (the most recently validated pattern wins).
func (m *Matcher) FindCandidates(ctx context.Context, casoID uuid.UUID, query model.SignatureVector) ([]Candidate, error) {
	queryFeatures := query.Features.Slice()
	if err := model.CheckDimensions(queryFeatures, m.cfg.Dimensions); err != nil {
		return nil, err
	}
	if _, err := m.store.GetCaso(ctx, casoID); err != nil {
		return nil, err
	}
	if isZero(queryFeatures) {
		// A zero query has similarity 0 to everything by convention, even to
		// a stored zero signature with an equal structural hash.
		return nil, nil
	}

	records, err := m.loadRecords(ctx, casoID, queryFeatures)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		var score float64
		if rec.Signature.Hash == query.Hash {
			// Structural hash match: identical vector, similarity is 1 by
			// definition, skip the dot product.
			score = 1.0
		} else {
			score = Cosine(queryFeatures, rec.Signature.Features.Slice())
		}
		if score < m.cfg.SimilarityThreshold {
			continue
		}
		candidates = append(candidates, Candidate{Record: rec, Score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Record.Reliability != b.Record.Reliability {
			return a.Record.Reliability > b.Record.Reliability
		}
		return a.Record.LastUsedAt.After(b.Record.LastUsedAt)
	})

	return candidates, nil
}

// loadRecords pulls candidate records, going through the ANN index when one
// is configured and healthy, falling back to a full scan otherwise. Index
// results are hydrated from the store of record, so deprecated or deleted
// patterns can never leak into a hint through index staleness.
func (m *Matcher) loadRecords(ctx context.Context, casoID uuid.UUID, features []float32) ([]model.PatternRecord, error) {
	if m.index == nil {
		return m.store.ListActivePatterns(ctx, casoID)
	}
	if err := m.index.Healthy(ctx); err != nil {
		// The health result is cached index-side, so an outage costs one
		// probe every few seconds, not one per query.
		m.logger.Warn("matcher: index unhealthy, falling back to full scan", "error", err)
		return m.store.ListActivePatterns(ctx, casoID)
	}

	results, err := m.index.FindSimilar(ctx, casoID, features, m.cfg.MaxCandidates)
	if err != nil {
		m.logger.Warn("matcher: index lookup failed, falling back to full scan", "error", err)
		return m.store.ListActivePatterns(ctx, casoID)
	}

	records := make([]model.PatternRecord, 0, len(results))
	for _, r := range results {
		rec, err := m.store.GetPattern(ctx, r.PatternID)
		if errors.Is(err, storage.ErrPatternNotFound) {
			continue // Removed between index search and hydration.
		}
		if err != nil {
			return nil, err
		}
		if rec.Deprecated || rec.CasoID != casoID {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindSimilarPattern wraps FindCandidates and serves the top survivor as a
// hint, or nil when no candidate survives — the normal "no hint available"
// case, not an error.
func (m *Matcher) FindSimilarPattern(ctx context.Context, casoID uuid.UUID, query model.SignatureVector) (*model.PatternHint, error) {
	candidates, err := m.FindCandidates(ctx, casoID, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	confidence := best.Score
	hint := &model.PatternHint{
		PatternID:        best.Record.ID,
		PatternType:      best.Record.PatternType,
		SuggestedEngine:  best.Record.SuggestedEngine,
		SuggestedBBox:    best.Record.SuggestedBBox,
		Confidence:       float32(confidence),
		Reliability:      best.Record.Reliability,
		ObservationCount: best.Record.ObservationCount,
		ShouldUse: confidence >= m.cfg.SimilarityThreshold &&
			float64(best.Record.Reliability) >= m.cfg.ReliabilityFloor,
	}

	m.logger.Debug("matcher: hint served",
		"caso_id", casoID,
		"pattern_id", hint.PatternID,
		"confidence", fmt.Sprintf("%.3f", confidence),
		"engine", hint.SuggestedEngine,
		"should_use", hint.ShouldUse,
	)
	return hint, nil
}
