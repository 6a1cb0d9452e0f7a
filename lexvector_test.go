package lexvector_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lexvector "github.com/PedroGiudice/lex-vector-sub003"
	"github.com/PedroGiudice/lex-vector-sub003/signature"
)

func newTestCache(t *testing.T) *lexvector.Cache {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cache, err := lexvector.New(context.Background(),
		lexvector.WithSQLitePath(":memory:"),
		lexvector.WithDimensions(signature.Dimensions),
		lexvector.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close(context.Background()) })
	return cache
}

func testFeatures() []float32 {
	return signature.Compute(signature.Page{
		Kind:              signature.KindRaster,
		SafeBBox:          [4]float64{36, 50, 520, 742},
		HasTarja:          true,
		CharCount:         1800,
		TarjaXCut:         520,
		Complexity:        signature.ComplexityRasterDirty,
		RecommendedEngine: "ocr_fast",
		NeedsCleaning:     true,
		CleaningReasons:   []string{"tarja"},
	})
}

func TestCacheLifecycle(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	caso, err := cache.GetOrCreateCaso(ctx, "0000001-12.2024.5.01.0001", "pje")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, caso.ID)

	features := testFeatures()
	learnCalls := 0

	// Cold start: nothing learned yet.
	hint, err := cache.FindSimilarPattern(ctx, caso.ID, features)
	require.NoError(t, err)
	require.Nil(t, hint)

	// First page extracted with OCR; report the success.
	outcome, err := cache.LearnFromPage(ctx, caso.ID, features, lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineOCRFast,
		Success:      true,
		QualityScore: 0.9,
		PatternType:  lexvector.PatternTextBlock,
	}, nil)
	require.NoError(t, err)
	learnCalls++
	assert.Equal(t, lexvector.TransitionCreated, outcome.Transition)
	assert.Equal(t, float32(0.9), outcome.Reliability)

	// The same layout now yields a confident hint.
	hint, err = cache.FindSimilarPattern(ctx, caso.ID, features)
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, outcome.PatternID, hint.PatternID)
	assert.Equal(t, lexvector.EngineOCRFast, hint.SuggestedEngine)
	assert.Equal(t, float32(1.0), hint.Confidence)
	assert.True(t, hint.ShouldUse)

	// A lower-tier engine working once does not displace the suggestion.
	outcome, err = cache.LearnFromPage(ctx, caso.ID, features, lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineNativeText,
		Success:      true,
		QualityScore: 0.95,
	}, hint)
	require.NoError(t, err)
	learnCalls++
	assert.Equal(t, lexvector.TransitionProtected, outcome.Transition)

	hint, err = cache.FindSimilarPattern(ctx, caso.ID, features)
	require.NoError(t, err)
	require.NotNil(t, hint)
	assert.Equal(t, lexvector.EngineOCRFast, hint.SuggestedEngine)

	// Repeated failures wear the pattern down until it is deprecated.
	deprecated := false
	for i := 0; i < 10 && !deprecated; i++ {
		outcome, err = cache.LearnFromPage(ctx, caso.ID, features, lexvector.ObservationResult{
			EngineUsed: lexvector.EngineOCRFast,
			Success:    false,
		}, hint)
		require.NoError(t, err)
		learnCalls++
		deprecated = outcome.Transition == lexvector.TransitionDeprecated
	}
	require.True(t, deprecated)

	// Deprecated patterns stop serving hints, but nothing was deleted.
	hint, err = cache.FindSimilarPattern(ctx, caso.ID, features)
	require.NoError(t, err)
	assert.Nil(t, hint)

	active, err := cache.PatternCount(ctx, caso.ID, false)
	require.NoError(t, err)
	assert.Zero(t, active)

	retired, err := cache.PatternCount(ctx, caso.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	// One audit row per learn call.
	n, err := cache.ObservationCount(ctx, caso.ID)
	require.NoError(t, err)
	assert.Equal(t, learnCalls, n)
}

func TestGetCasoByNumero(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, err := cache.GetCasoByNumero(ctx, "0000009-99.2024.5.01.0001", "pje")
	assert.ErrorIs(t, err, lexvector.ErrCaseNotFound, "lookup never creates")

	created, err := cache.GetOrCreateCaso(ctx, "0000009-99.2024.5.01.0001", "pje")
	require.NoError(t, err)

	found, err := cache.GetCasoByNumero(ctx, "0000009-99.2024.5.01.0001", "pje")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestZeroFeaturesServeNoHint(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	caso, err := cache.GetOrCreateCaso(ctx, "0000004-56.2024.5.01.0001", "pje")
	require.NoError(t, err)

	zero := make([]float32, signature.Dimensions)
	_, err = cache.LearnFromPage(ctx, caso.ID, zero, lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineOCRFast,
		Success:      true,
		QualityScore: 0.9,
	}, nil)
	require.NoError(t, err)

	// The stored pattern is anchored at the zero vector; it still must never
	// come back as a hint, not even for the identical zero query.
	hint, err := cache.FindSimilarPattern(ctx, caso.ID, zero)
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestGetOrCreateCasoConcurrent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]uuid.UUID, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caso, err := cache.GetOrCreateCaso(ctx, "0000002-34.2024.8.26.0100", "esaj")
			assert.NoError(t, err)
			ids[i] = caso.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestCasoIsolation(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	one, err := cache.GetOrCreateCaso(ctx, "0000003-55.2024.4.03.6100", "pje")
	require.NoError(t, err)
	two, err := cache.GetOrCreateCaso(ctx, "0000004-66.2024.4.03.6100", "pje")
	require.NoError(t, err)

	features := testFeatures()
	_, err = cache.LearnFromPage(ctx, one.ID, features, lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineOCRHighQuality,
		Success:      true,
		QualityScore: 0.9,
	}, nil)
	require.NoError(t, err)

	// The other caso never sees patterns it does not own.
	hint, err := cache.FindSimilarPattern(ctx, two.ID, features)
	require.NoError(t, err)
	assert.Nil(t, hint)
}

func TestFindSimilarPatternErrors(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, err := cache.FindSimilarPattern(ctx, uuid.New(), testFeatures())
	assert.ErrorIs(t, err, lexvector.ErrCaseNotFound)

	caso, err := cache.GetOrCreateCaso(ctx, "0000005-77.2024.5.02.0030", "pje")
	require.NoError(t, err)

	_, err = cache.FindSimilarPattern(ctx, caso.ID, []float32{1, 2, 3})
	assert.ErrorIs(t, err, lexvector.ErrDimensionMismatch)
}

func TestLearnFromPageErrors(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	result := lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineOCRFast,
		Success:      true,
		QualityScore: 0.9,
	}

	_, err := cache.LearnFromPage(ctx, uuid.New(), testFeatures(), result, nil)
	assert.ErrorIs(t, err, lexvector.ErrCaseNotFound)

	caso, err := cache.GetOrCreateCaso(ctx, "0000006-88.2024.5.02.0030", "pje")
	require.NoError(t, err)

	_, err = cache.LearnFromPage(ctx, caso.ID, []float32{1}, result, nil)
	assert.ErrorIs(t, err, lexvector.ErrDimensionMismatch)
}

func TestConcurrentLearnSameCaso(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	caso, err := cache.GetOrCreateCaso(ctx, "0000007-99.2024.5.02.0030", "pje")
	require.NoError(t, err)

	features := testFeatures()
	outcome, err := cache.LearnFromPage(ctx, caso.ID, features, lexvector.ObservationResult{
		EngineUsed:   lexvector.EngineOCRFast,
		Success:      true,
		QualityScore: 0.9,
	}, nil)
	require.NoError(t, err)

	hint := &lexvector.PatternHint{PatternID: outcome.PatternID}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.LearnFromPage(ctx, caso.ID, features, lexvector.ObservationResult{
				EngineUsed:   lexvector.EngineOCRFast,
				Success:      true,
				QualityScore: 0.8,
			}, hint)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Writes were serialized: every observation landed and was counted.
	n, err := cache.ObservationCount(ctx, caso.ID)
	require.NoError(t, err)
	assert.Equal(t, workers+1, n)

	stats, err := cache.EngineStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, lexvector.EngineOCRFast, stats[0].Engine)
	assert.Equal(t, workers+1, stats[0].TotalObservations)
}
