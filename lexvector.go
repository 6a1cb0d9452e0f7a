// Package lexvector is a signature-based pattern cache for legal document
// extraction. It remembers, per caso (legal case), which extraction strategy
// (engine + region hint) previously succeeded on a given page layout, and
// suggests that strategy again when a structurally similar page shows up.
//
// Three operations make up the contract:
//
//	cache, err := lexvector.New(ctx, lexvector.WithDimensions(10))
//	caso, err := cache.GetOrCreateCaso(ctx, "0000001-12.2024.5.01.0001", "pje")
//	hint, err := cache.FindSimilarPattern(ctx, caso.ID, features)
//	// ... pipeline extracts the page using the hint, or a default ...
//	outcome, err := cache.LearnFromPage(ctx, caso.ID, features, result, hint)
//
// Reads are lock-free and may observe a slightly stale snapshot; writes are
// serialized per caso, so workers sharding a multi-page document across
// goroutines can learn concurrently without a global lock.
//
// The import graph enforces a strict no-cycle rule: lexvector (root) imports
// internal/*, but internal/* never imports the root. Public types (Caso,
// PatternHint, ...) are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees both
// sides of the boundary.
package lexvector

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/PedroGiudice/lex-vector-sub003/internal/config"
	"github.com/PedroGiudice/lex-vector-sub003/internal/keylock"
	"github.com/PedroGiudice/lex-vector-sub003/internal/learner"
	"github.com/PedroGiudice/lex-vector-sub003/internal/matcher"
	"github.com/PedroGiudice/lex-vector-sub003/internal/model"
	"github.com/PedroGiudice/lex-vector-sub003/internal/search"
	"github.com/PedroGiudice/lex-vector-sub003/internal/sqlite"
	"github.com/PedroGiudice/lex-vector-sub003/internal/storage"
	"github.com/PedroGiudice/lex-vector-sub003/internal/telemetry"
	"github.com/PedroGiudice/lex-vector-sub003/migrations"
)

// Cache is the pattern cache façade. Construct with New. Safe for
// concurrent use by multiple extraction workers.
type Cache struct {
	store   store
	index   search.Index
	matcher *matcher.Matcher
	learner *learner.Learner
	locks   *keylock.Map
	metrics *telemetry.CacheMetrics
	logger  *slog.Logger
	dims    int

	casoGroup singleflight.Group
}

// New builds a Cache from environment configuration plus options.
// With a database URL it runs on Postgres (and applies migrations);
// otherwise it opens the embedded SQLite store.
func New(ctx context.Context, opts ...Option) (*Cache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	o := resolvedOptions{
		logger:                        slog.Default(),
		databaseURL:                   cfg.DatabaseURL,
		sqlitePath:                    cfg.SQLitePath,
		dimensions:                    cfg.Dimensions,
		similarityThreshold:           cfg.SimilarityThreshold,
		reliabilityFloor:              cfg.ReliabilityFloor,
		maxCandidates:                 cfg.MaxCandidates,
		decayAlpha:                    cfg.DecayAlpha,
		minObservationsForDeprecation: cfg.MinObservationsForDeprecation,
		qdrantURL:                     cfg.QdrantURL,
		qdrantAPIKey:                  cfg.QdrantAPIKey,
		qdrantCollection:              cfg.QdrantCollection,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var st store
	if o.databaseURL != "" {
		db, err := storage.New(ctx, o.databaseURL, o.logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		st = db
	} else {
		db, err := sqlite.Open(o.sqlitePath, o.logger)
		if err != nil {
			return nil, err
		}
		st = db
	}

	var index search.Index
	if o.qdrantURL != "" {
		qi, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        o.qdrantURL,
			APIKey:     o.qdrantAPIKey,
			Collection: o.qdrantCollection,
			Dims:       uint64(o.dimensions), //nolint:gosec // validated positive
		}, o.logger)
		if err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		if err := qi.EnsureCollection(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, err
		}
		index = qi
	}

	metrics, err := telemetry.NewCacheMetrics()
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	return &Cache{
		store: st,
		index: index,
		matcher: matcher.New(st, index, matcher.Config{
			Dimensions:          o.dimensions,
			SimilarityThreshold: o.similarityThreshold,
			ReliabilityFloor:    o.reliabilityFloor,
			MaxCandidates:       o.maxCandidates,
		}, o.logger),
		learner: learner.New(st, learner.Config{
			Dimensions:                    o.dimensions,
			DecayAlpha:                    o.decayAlpha,
			ReliabilityFloor:              o.reliabilityFloor,
			MinObservationsForDeprecation: o.minObservationsForDeprecation,
		}, o.logger),
		locks:   keylock.New(),
		metrics: metrics,
		logger:  o.logger,
		dims:    o.dimensions,
	}, nil
}

// Close releases the persistence substrate.
func (c *Cache) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}

// Ping checks the persistence substrate is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// GetOrCreateCaso returns the caso for (numeroCNJ, sistema), creating it on
// first sight. Idempotent: concurrent callers all receive the same row.
// In-process bursts are deduplicated with singleflight; across processes the
// store's unique constraint guarantees a single surviving row.
func (c *Cache) GetOrCreateCaso(ctx context.Context, numeroCNJ, sistema string) (Caso, error) {
	v, err, _ := c.casoGroup.Do(numeroCNJ+"\x00"+sistema, func() (any, error) {
		return c.store.GetOrCreateCaso(ctx, numeroCNJ, sistema)
	})
	if err != nil {
		return Caso{}, err
	}
	return toPublicCaso(v.(model.Caso)), nil
}

// GetCasoByNumero looks up an existing caso by (numeroCNJ, sistema) without
// creating one. Returns ErrCaseNotFound when the pair has never been seen.
func (c *Cache) GetCasoByNumero(ctx context.Context, numeroCNJ, sistema string) (Caso, error) {
	caso, err := c.store.GetCasoByNumero(ctx, numeroCNJ, sistema)
	if err != nil {
		return Caso{}, err
	}
	return toPublicCaso(caso), nil
}

// FindSimilarPattern looks for a stored pattern structurally similar to
// features within the caso and returns a hint, or nil when nothing similar
// enough is known — the normal cold-start answer, not an error.
func (c *Cache) FindSimilarPattern(ctx context.Context, casoID uuid.UUID, features []float32) (*PatternHint, error) {
	sig := model.NewSignatureVector(features)
	hint, err := c.matcher.FindSimilarPattern(ctx, casoID, sig)
	if err != nil {
		return nil, err
	}
	if hint == nil {
		c.metrics.RecordHint(ctx, false, 0)
		return nil, nil
	}
	c.metrics.RecordHint(ctx, true, float64(hint.Confidence))
	return toPublicHint(hint), nil
}

// LearnFromPage records the outcome of extracting one page and returns what
// it did to the store. priorHint must be the hint served for this page (or
// nil if none was used). Serialized per caso; calls for different casos run
// in parallel.
func (c *Cache) LearnFromPage(ctx context.Context, casoID uuid.UUID, features []float32, result ObservationResult, priorHint *PatternHint) (LearnOutcome, error) {
	unlock := c.locks.Lock(casoID)
	defer unlock()

	sig := model.NewSignatureVector(features)
	outcome, err := c.learner.LearnFromPage(ctx, casoID, sig, fromPublicResult(result), fromPublicHint(priorHint))
	if err != nil {
		return LearnOutcome{}, err
	}

	c.metrics.RecordLearn(ctx, string(outcome.Transition))
	c.syncIndex(ctx, casoID, sig, result, outcome)

	return toPublicOutcome(outcome), nil
}

// syncIndex mirrors pattern lifecycle into the ANN index, best-effort: the
// store is the source of record and the matcher re-checks everything it
// hydrates from the index, so a failed sync only costs recall, not
// correctness. Reinforcements don't change the stored vector and are skipped.
func (c *Cache) syncIndex(ctx context.Context, casoID uuid.UUID, sig model.SignatureVector, result ObservationResult, outcome model.LearnOutcome) {
	if c.index == nil {
		return
	}
	switch outcome.Transition {
	case model.TransitionCreated:
		err := c.index.Upsert(ctx, search.Point{
			ID:          outcome.PatternID,
			CasoID:      casoID,
			PatternType: result.PatternType,
			Reliability: outcome.Reliability,
			Features:    sig.Features.Slice(),
		})
		if err != nil {
			c.logger.Warn("index upsert failed", "pattern_id", outcome.PatternID, "error", err)
		}
	case model.TransitionDeprecated:
		if err := c.index.Delete(ctx, outcome.PatternID); err != nil {
			c.logger.Warn("index delete failed", "pattern_id", outcome.PatternID, "error", err)
		}
	}
}

// EngineStats returns the per-engine quality rollup across all casos.
func (c *Cache) EngineStats(ctx context.Context) ([]EngineStats, error) {
	stats, err := c.store.EngineStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]EngineStats, len(stats))
	for i, s := range stats {
		out[i] = EngineStats{
			Engine:            string(s.Engine),
			TotalPatterns:     s.TotalPatterns,
			AvgReliability:    s.AvgReliability,
			TotalObservations: s.TotalObservations,
			DeprecatedCount:   s.DeprecatedCount,
			ReliabilityScore:  s.ReliabilityScore(),
		}
	}
	return out, nil
}

// PatternCount returns how many patterns the caso owns in the given
// deprecation state.
func (c *Cache) PatternCount(ctx context.Context, casoID uuid.UUID, deprecated bool) (int, error) {
	return c.store.PatternCount(ctx, casoID, deprecated)
}

// ObservationCount returns the size of the caso's append-only observation
// log — one row per LearnFromPage call.
func (c *Cache) ObservationCount(ctx context.Context, casoID uuid.UUID) (int, error) {
	return c.store.CountObservations(ctx, casoID)
}

// Conversions between public and internal types. Public structs carry no
// internal imports; this file is the boundary.

func toPublicCaso(c model.Caso) Caso {
	return Caso{ID: c.ID, NumeroCNJ: c.NumeroCNJ, Sistema: c.Sistema, CreatedAt: c.CreatedAt}
}

func toPublicHint(h *model.PatternHint) *PatternHint {
	return &PatternHint{
		PatternID:        h.PatternID,
		PatternType:      string(h.PatternType),
		SuggestedEngine:  string(h.SuggestedEngine),
		SuggestedBBox:    (*BBox)(h.SuggestedBBox),
		Confidence:       h.Confidence,
		Reliability:      h.Reliability,
		ObservationCount: h.ObservationCount,
		ShouldUse:        h.ShouldUse,
	}
}

func fromPublicHint(h *PatternHint) *model.PatternHint {
	if h == nil {
		return nil
	}
	return &model.PatternHint{
		PatternID:        h.PatternID,
		PatternType:      model.PatternType(h.PatternType),
		SuggestedEngine:  model.EngineType(h.SuggestedEngine),
		SuggestedBBox:    (*model.BBox)(h.SuggestedBBox),
		Confidence:       h.Confidence,
		Reliability:      h.Reliability,
		ObservationCount: h.ObservationCount,
		ShouldUse:        h.ShouldUse,
	}
}

func fromPublicResult(r ObservationResult) model.ObservationResult {
	return model.ObservationResult{
		EngineUsed:   model.EngineType(r.EngineUsed),
		Success:      r.Success,
		QualityScore: r.QualityScore,
		BBoxUsed:     (*model.BBox)(r.BBoxUsed),
		PageNum:      r.PageNum,
		PatternType:  model.PatternType(r.PatternType),
		Timestamp:    r.Timestamp,
	}
}

func toPublicOutcome(o model.LearnOutcome) LearnOutcome {
	return LearnOutcome{
		PatternID:   o.PatternID,
		Transition:  string(o.Transition),
		Reliability: o.Reliability,
	}
}

// Both backends must satisfy the store contract.
var (
	_ store = (*storage.DB)(nil)
	_ store = (*sqlite.Store)(nil)
)
